package orchestrator

import (
	"context"
	"time"

	"drm-scribe-orchestra/internal/domain/entity"
)

// NotificationKind 通知类别
type NotificationKind string

const (
	NotifyPipelineStarted   NotificationKind = "pipeline_started"
	NotifyItemStarted       NotificationKind = "item_started"
	NotifyItemCompleted     NotificationKind = "item_completed"
	NotifyItemFailed        NotificationKind = "item_failed"
	NotifyPipelineCompleted NotificationKind = "pipeline_completed"
	NotifyRegenerated       NotificationKind = "regenerated"
	NotifyInsightsReady     NotificationKind = "insights_ready"
	NotifyPlansReady        NotificationKind = "plans_ready"
)

// Notification 一条瞬时通知（对应界面上的 toast）
type Notification struct {
	SessionID   string             `json:"sessionId"`
	Kind        NotificationKind   `json:"kind"`
	ContentType entity.ContentType `json:"contentType,omitempty"`
	Status      entity.ItemStatus  `json:"status,omitempty"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	// Destructive 错误类通知
	Destructive bool      `json:"destructive,omitempty"`
	At          time.Time `json:"at"`
}

// Notifier 通知下游（SSE、Redis Stream 等）；实现不得阻塞编排
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NopNotifier 丢弃所有通知
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) {}

// MultiNotifier 依次转发给多个 Notifier
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n Notification) {
	for _, nt := range m {
		if nt != nil {
			nt.Notify(ctx, n)
		}
	}
}

// NotifierFunc 函数适配器
type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

func itemTitle(ct entity.ContentType) string {
	if info, ok := entity.LookupContentType(ct); ok {
		return info.Title
	}
	return string(ct)
}

func newNotification(sessionID string, kind NotificationKind, ct entity.ContentType) Notification {
	n := Notification{SessionID: sessionID, Kind: kind, ContentType: ct, At: time.Now()}
	title := itemTitle(ct)
	switch kind {
	case NotifyPipelineStarted:
		n.Title, n.Description = "生成開始", "マーケティングコンテンツの生成を開始しました"
	case NotifyItemStarted:
		n.Title, n.Description, n.Status = "生成中", title+"を生成しています", entity.ItemStatusPending
	case NotifyItemCompleted:
		n.Title, n.Description, n.Status = "生成完了", title+"の生成が完了しました", entity.ItemStatusCompleted
	case NotifyItemFailed:
		n.Title, n.Description, n.Status = "エラー", title+"の生成に失敗しました", entity.ItemStatusError
		n.Destructive = true
	case NotifyPipelineCompleted:
		n.Title, n.Description = "全ての生成が完了しました！", "マーケティングコンテンツが全て準備できました"
	case NotifyRegenerated:
		n.Title, n.Description, n.Status = "再生成完了", "コンテンツの再生成が完了しました", entity.ItemStatusCompleted
	case NotifyInsightsReady:
		n.Title, n.Description = "分析完了", "ターゲットインサイト分析が完了しました"
	case NotifyPlansReady:
		n.Title, n.Description = "企画案生成完了", "リードマグネット企画案が生成されました"
	}
	return n
}
