package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/d60-Lab/tailor-checkout/internal/claim"
	"github.com/d60-Lab/tailor-checkout/internal/gateway"
	"github.com/d60-Lab/tailor-checkout/internal/model"
	"github.com/d60-Lab/tailor-checkout/internal/repository"
	"github.com/d60-Lab/tailor-checkout/pkg/logger"
	"github.com/d60-Lab/tailor-checkout/pkg/observability"
)

const (
	eventChargeSuccess = "charge.success"

	msgAmountMismatch = "amount paid differs from order total"
	msgNotifyFailed   = "admin notification failed"
)

// Outcome 一次对账的结果
type Outcome struct {
	Reference string               `json:"reference"`
	State     model.ReconcileState `json:"state"`
	Source    string               `json:"source,omitempty"`
	Notified  bool                 `json:"notified"`
	Exported  bool                 `json:"exported"`
	Message   string               `json:"message,omitempty"`
	Order     *model.OrderRecord   `json:"order,omitempty"`

	AmountMismatch bool `json:"amount_mismatch,omitempty"`
}

// FollowUpRequired 已收款但通知或导出失败，或金额需核对
func (o *Outcome) FollowUpRequired() bool {
	return o.State == model.StateComplete && (!o.Notified || !o.Exported || o.AmountMismatch)
}

// Reconciler 把一笔已验证的支付恰好提交一次
type Reconciler struct {
	gateway   PaymentGateway
	notifier  AdminNotifier
	exporter  LedgerExporter
	claims    claim.Store
	orders    repository.OrderRepository
	snapshots repository.SnapshotRepository
}

func NewReconciler(
	gw PaymentGateway,
	notifier AdminNotifier,
	exporter LedgerExporter,
	claims claim.Store,
	orders repository.OrderRepository,
	snapshots repository.SnapshotRepository,
) *Reconciler {
	return &Reconciler{
		gateway:   gw,
		notifier:  notifier,
		exporter:  exporter,
		claims:    claims,
		orders:    orders,
		snapshots: snapshots,
	}
}

// ConfirmPayment 浏览器回调路径；order 为空时依次尝试快照和 metadata
func (r *Reconciler) ConfirmPayment(ctx context.Context, reference string, order *model.PendingOrder) (*Outcome, error) {
	return r.confirm(ctx, reference, order, model.SourceBrowser)
}

func (r *Reconciler) confirm(ctx context.Context, reference string, order *model.PendingOrder, source string) (*Outcome, error) {
	txn, err := r.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !txn.Succeeded() {
		logger.Info("payment not successful",
			zap.String("reference", reference),
			zap.String("status", string(txn.Status)),
			zap.String("gateway_response", txn.GatewayResponse),
		)
		return &Outcome{
			Reference: reference,
			State:     model.StateVerificationFailed,
			Source:    source,
			Message:   txn.GatewayResponse,
		}, nil
	}

	return r.commit(ctx, r.buildRecord(ctx, txn, order, source))
}

// buildRecord 还原订单并核对实付金额
func (r *Reconciler) buildRecord(ctx context.Context, txn *model.Transaction, supplied *model.PendingOrder, source string) model.OrderRecord {
	rec := model.NewOrderRecord(r.resolveOrder(ctx, txn, supplied), txn, source)
	checkAmount(&rec, txn.Amount)
	return rec
}

// checkAmount 订单总额和按行项目重算的金额都须等于实付金额
func checkAmount(rec *model.OrderRecord, paid decimal.Decimal) {
	fields := []zap.Field{
		zap.String("reference", rec.Reference),
		zap.String("paid", paid.String()),
		zap.String("order_total", rec.Total.String()),
	}
	if !rec.Total.Equal(paid) {
		rec.AmountMismatch = true
	}
	if computed, priced := itemsTotal(&rec.PendingOrder); priced {
		fields = append(fields, zap.String("items_total", computed.String()))
		if !computed.Equal(paid) {
			rec.AmountMismatch = true
		}
	}
	if rec.AmountMismatch {
		logger.Warn("order total differs from amount paid", fields...)
	}
}

// ParseWebhook 校验签名并解析事件；relevant 为 false 时调用方只需确认收到
func (r *Reconciler) ParseWebhook(rawBody []byte, signature string) (txn *model.Transaction, relevant bool, err error) {
	if !r.gateway.VerifyWebhookSignature(rawBody, signature) {
		return nil, false, ErrInvalidSignature
	}
	var ev gateway.WebhookEvent
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.Event != eventChargeSuccess || ev.Data.Status != string(model.TxSuccess) {
		logger.Debug("webhook event ignored",
			zap.String("event", ev.Event),
			zap.String("reference", ev.Data.Reference),
		)
		return nil, false, nil
	}
	if ev.Data.Reference == "" {
		return nil, false, fmt.Errorf("%w: missing reference", ErrMalformedEvent)
	}
	return ev.Transaction(r.gateway.DefaultCurrency()), true, nil
}

// HandleWebhook 同步处理一条 webhook
func (r *Reconciler) HandleWebhook(ctx context.Context, rawBody []byte, signature string) (*Outcome, error) {
	txn, relevant, err := r.ParseWebhook(rawBody, signature)
	if err != nil {
		return nil, err
	}
	if !relevant {
		return nil, nil
	}
	return r.ReconcileWebhook(ctx, txn)
}

// ReconcileWebhook 签名已校验的 charge.success 事件
func (r *Reconciler) ReconcileWebhook(ctx context.Context, txn *model.Transaction) (*Outcome, error) {
	return r.commit(ctx, r.buildRecord(ctx, txn, nil, model.SourceWebhook))
}

// PlaceOrder 直接下单；带 reference 时先向网关验证
func (r *Reconciler) PlaceOrder(ctx context.Context, order model.PendingOrder, reference string) (*Outcome, error) {
	if err := validate.Struct(order); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	if reference != "" {
		return r.confirm(ctx, reference, &order, model.SourceDirect)
	}
	rec := model.NewOrderRecord(order, nil, model.SourceDirect)
	rec.Reference = gateway.GenerateReference("DIRECT")
	return r.commit(ctx, rec)
}

// Replay 重跑失败的通知/导出；订单从未落库时重新验证并提交
func (r *Reconciler) Replay(ctx context.Context, reference string) (*Outcome, error) {
	existing, err := r.orders.GetByReference(ctx, reference)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return r.replayUncommitted(ctx, reference)
	}
	if err != nil {
		return nil, err
	}

	var rec model.OrderRecord
	if err := json.Unmarshal(existing.Record, &rec); err != nil {
		return nil, fmt.Errorf("decode committed order %s: %w", reference, err)
	}

	out := &Outcome{
		Reference:      reference,
		Source:         existing.Source,
		Notified:       existing.Notified,
		Exported:       existing.Exported,
		AmountMismatch: existing.AmountMismatch,
		Order:          &rec,
	}
	var problems []string
	if out.AmountMismatch {
		problems = append(problems, msgAmountMismatch)
	}
	if !out.Notified {
		if out.Notified = r.notifier.NotifyAdmin(ctx, rec); !out.Notified {
			problems = append(problems, msgNotifyFailed)
		}
	}
	if !out.Exported {
		if err := r.exporter.AppendOrder(ctx, rec); err != nil {
			problems = append(problems, err.Error())
		} else {
			out.Exported = true
		}
	}
	out.State = model.StateComplete

	update := repository.OutcomeUpdate{
		State:     out.State,
		Notified:  out.Notified,
		Exported:  out.Exported,
		LastError: strings.Join(problems, "; "),
	}
	if err := r.orders.UpdateOutcome(ctx, reference, update); err != nil {
		return out, fmt.Errorf("update outcome %s: %w", reference, err)
	}
	logger.Info("order replayed",
		zap.String("reference", reference),
		zap.Bool("notified", out.Notified),
		zap.Bool("exported", out.Exported),
	)
	return out, nil
}

// 认领方在落库前退出时 claim 会卡住，此处绕过 claim 重新执行
func (r *Reconciler) replayUncommitted(ctx context.Context, reference string) (*Outcome, error) {
	txn, err := r.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !txn.Succeeded() {
		return &Outcome{Reference: reference, State: model.StateVerificationFailed, Message: txn.GatewayResponse}, nil
	}
	owner, _, err := r.claims.Lookup(ctx, reference)
	if errors.Is(err, claim.ErrNotFound) {
		return r.ReconcileWebhook(ctx, txn)
	}
	if owner == "" {
		owner = model.SourceWebhook
	}
	return r.execute(ctx, r.buildRecord(ctx, txn, nil, owner)), nil
}

// resolveOrder 服务端快照优先于客户端提交的订单，最后退回 metadata
func (r *Reconciler) resolveOrder(ctx context.Context, txn *model.Transaction, supplied *model.PendingOrder) model.PendingOrder {
	hasSupplied := supplied != nil && len(supplied.Items) > 0
	if snap := r.loadSnapshot(ctx, txn.Reference); snap != nil {
		if hasSupplied && !sameCart(supplied, snap) {
			logger.Warn("submitted order differs from snapshot, using snapshot",
				zap.String("reference", txn.Reference),
				zap.Int("submitted_items", len(supplied.Items)),
				zap.Int("snapshot_items", len(snap.Items)),
			)
		}
		return *snap
	}
	if hasSupplied {
		return *supplied
	}
	return gateway.OrderFromMetadata(txn)
}

func (r *Reconciler) loadSnapshot(ctx context.Context, reference string) *model.PendingOrder {
	if r.snapshots == nil {
		return nil
	}
	snap, err := r.snapshots.Get(ctx, reference)
	if err != nil {
		if !errors.Is(err, repository.ErrSnapshotNotFound) {
			logger.Warn("load order snapshot failed", zap.String("reference", reference), zap.Error(err))
		}
		return nil
	}
	return snap
}

func sameCart(a, b *model.PendingOrder) bool {
	if len(a.Items) != len(b.Items) {
		return false
	}
	ta, _ := itemsTotal(a)
	tb, _ := itemsTotal(b)
	return ta.Equal(tb)
}

// commit 只有赢得 claim 的路径才执行副作用
func (r *Reconciler) commit(ctx context.Context, rec model.OrderRecord) (*Outcome, error) {
	won, err := r.claims.Claim(ctx, rec.Reference, rec.Source)
	if err != nil {
		// 认领存储不可用时宁可重复也不漏单
		logger.Warn("claim store unavailable, proceeding",
			zap.String("reference", rec.Reference),
			zap.Error(err),
		)
		observability.ReportError(err, map[string]string{"reference": rec.Reference, "stage": "claim"})
		won = true
	}
	if !won {
		logger.Info("reference already claimed",
			zap.String("reference", rec.Reference),
			zap.String("source", rec.Source),
		)
		out := &Outcome{Reference: rec.Reference, State: model.StateDuplicate, Source: rec.Source}
		if existing, err := r.orders.GetByReference(ctx, rec.Reference); err == nil {
			out.Notified = existing.Notified
			out.Exported = existing.Exported
		}
		return out, nil
	}
	return r.execute(ctx, rec), nil
}

func (r *Reconciler) execute(ctx context.Context, rec model.OrderRecord) *Outcome {
	out := &Outcome{Reference: rec.Reference, State: model.StateVerified, Source: rec.Source, Order: &rec}
	tags := map[string]string{"reference": rec.Reference, "source": rec.Source}
	var problems []string

	if rec.AmountMismatch {
		out.AmountMismatch = true
		problems = append(problems, msgAmountMismatch)
		observability.ReportError(fmt.Errorf("%s: %s", msgAmountMismatch, rec.Reference), tags)
	}

	out.Notified = r.notifier.NotifyAdmin(ctx, rec)
	if out.Notified {
		r.advance(ctx, rec.Reference, model.StateNotified)
	} else {
		problems = append(problems, msgNotifyFailed)
		observability.ReportError(fmt.Errorf("notify admin for %s failed", rec.Reference), tags)
	}

	if err := r.exporter.AppendOrder(ctx, rec); err != nil {
		problems = append(problems, err.Error())
		logger.Error("ledger export failed", zap.String("reference", rec.Reference), zap.Error(err))
		observability.ReportError(err, tags)
	} else {
		out.Exported = true
		r.advance(ctx, rec.Reference, model.StateExported)
	}

	out.State = model.StateComplete
	r.persist(ctx, rec, out, strings.Join(problems, "; "))
	r.advance(ctx, rec.Reference, model.StateComplete)

	if r.snapshots != nil {
		if err := r.snapshots.Delete(ctx, rec.Reference); err != nil {
			logger.Warn("delete order snapshot failed", zap.String("reference", rec.Reference), zap.Error(err))
		}
	}

	logger.Info("order committed",
		zap.String("reference", rec.Reference),
		zap.String("source", rec.Source),
		zap.Bool("notified", out.Notified),
		zap.Bool("exported", out.Exported),
		zap.Bool("amount_mismatch", out.AmountMismatch),
	)
	return out
}

func (r *Reconciler) persist(ctx context.Context, rec model.OrderRecord, out *Outcome, lastErr string) {
	payload, err := json.Marshal(rec)
	if err != nil {
		logger.Error("encode order record failed", zap.String("reference", rec.Reference), zap.Error(err))
		return
	}
	row := &model.CommittedOrder{
		Reference:    rec.Reference,
		Source:       rec.Source,
		Email:        rec.Customer.Email,
		CustomerName: rec.Customer.Name,
		Total:        rec.Total,
		Currency:     rec.Currency,
		State:        out.State,
		Notified:     out.Notified,
		Exported:     out.Exported,
		LastError:    lastErr,
		Record:       payload,

		AmountMismatch: out.AmountMismatch,
	}
	if err := r.orders.Create(ctx, row); err != nil {
		// 重放路径上记录可能已存在
		uerr := r.orders.UpdateOutcome(ctx, rec.Reference, repository.OutcomeUpdate{
			State: out.State, Notified: out.Notified, Exported: out.Exported, LastError: lastErr,
		})
		if uerr != nil {
			logger.Error("persist committed order failed",
				zap.String("reference", rec.Reference),
				zap.NamedError("create_error", err),
				zap.NamedError("update_error", uerr),
			)
			observability.ReportError(errors.Join(err, uerr), map[string]string{"reference": rec.Reference, "stage": "persist"})
		}
	}
}

func (r *Reconciler) advance(ctx context.Context, reference string, state model.ReconcileState) {
	if err := r.claims.Advance(ctx, reference, state); err != nil {
		logger.Warn("advance claim state failed",
			zap.String("reference", reference),
			zap.String("state", string(state)),
			zap.Error(err),
		)
	}
}

// Lookup 运维查询：已落库订单
func (r *Reconciler) Lookup(ctx context.Context, reference string) (*model.CommittedOrder, error) {
	return r.orders.GetByReference(ctx, reference)
}

func (r *Reconciler) List(ctx context.Context, f repository.OrderFilter) ([]*model.CommittedOrder, error) {
	return r.orders.List(ctx, f)
}
