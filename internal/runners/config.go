// Package runners holds the built-in node runner implementations: outbound
// webhooks, chat messages, condition evaluation, and trigger matchers.
package runners

// Type keys the built-in runners are registered under.
const (
	TypeWebhook      = "webhook"
	TypeChatMessage  = "chat.message"
	TypeCondition    = "condition"
	TypeEventTrigger = "trigger.event"
	TypeStageEntered = "trigger.stage_entered"
)

func configString(config map[string]any, key string) string {
	s, _ := config[key].(string)
	return s
}

func configBool(config map[string]any, key string) bool {
	b, _ := config[key].(bool)
	return b
}
