// Package notifier contains ledger subscribers that forward notifications
// to external sinks. Delivery is fire-and-forget throughout: a sink
// failure is logged and dropped, never surfaced to the writer.
package notifier

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"k8s.io/klog/v2"

	"fleetledger/ledger"
)

// Telegram pushes alert statuses and scaling actions to a set of chats.
// Routine metrics appends are deliberately not forwarded; a chat is an
// alerting channel, not a firehose.
type Telegram struct {
	bot     *tgbotapi.BotAPI
	chatIDs []int64
}

func NewTelegram(botToken string, chatIDs []int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	klog.Infof("Telegram notifier authorized as @%s", bot.Self.UserName)
	return &Telegram{bot: bot, chatIDs: chatIDs}, nil
}

func (t *Telegram) OnMetricsLogged(ev ledger.MetricsLogged) {
	if ev.Status != ledger.StatusAlert {
		return
	}
	t.send(fmt.Sprintf("[ALERT] Node %s reported status Alert at %s",
		ev.NodeID, time.Unix(ev.Timestamp, 0).Format(time.RFC3339)))
}

func (t *Telegram) OnScalingActionPerformed(ev ledger.ScalingActionPerformed) {
	t.send(fmt.Sprintf("[SCALING] %s on node %s at %s",
		ev.Action, ev.NodeID, time.Unix(ev.Timestamp, 0).Format(time.RFC3339)))
}

func (t *Telegram) send(message string) {
	for _, id := range t.chatIDs {
		if _, err := t.bot.Send(tgbotapi.NewMessage(id, message)); err != nil {
			klog.Errorf("Telegram send to chat %d failed: %v", id, err)
		}
	}
}
