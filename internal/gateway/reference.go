package gateway

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateReference returns "<prefix>-<unix millis>-<12 random hex>".
func GenerateReference(prefix string) string {
	if prefix == "" {
		prefix = "TLR"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), strings.ToUpper(suffix))
}
