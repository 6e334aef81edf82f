package service

import (
	"reflect"
	"sort"
	"strings"
)

// EventTransactionCompleted is the only payment event that confirms payment.
const EventTransactionCompleted = "transaction.completed"

// maxEmailSearchDepth bounds the recursive email scan.
const maxEmailSearchDepth = 32

// PaymentEvent is the part of a payment provider event the server acts on.
type PaymentEvent struct {
	EventType     string
	SubmissionID  string
	TransactionID string
	Email         string
	PresenterName string
}

// ParsePaymentEvent extracts the event fields from a decoded JSON envelope.
// The payload shape is not contractual, so every field has fallbacks.
func ParsePaymentEvent(body map[string]any) PaymentEvent {
	ev := PaymentEvent{
		EventType: firstString(body, "event_type", "eventType"),
	}

	data, _ := body["data"].(map[string]any)
	if data == nil {
		return ev
	}

	custom := firstMap(data, "custom_data", "customData")
	ev.SubmissionID = strings.TrimSpace(stringAt(custom, "submissionId"))
	ev.PresenterName = strings.TrimSpace(stringAt(custom, "presenterName"))
	ev.TransactionID = strings.TrimSpace(firstString(data, "id", "transaction_id", "transactionId"))
	ev.Email = FindEmail(data)
	return ev
}

// FindEmail looks for a buyer email in the known locations of an event's
// data object, then anywhere in it.
func FindEmail(data map[string]any) string {
	for _, parent := range []string{"customer", "billing_details", "user", "address"} {
		if obj, ok := data[parent].(map[string]any); ok {
			if email := strings.TrimSpace(stringAt(obj, "email")); email != "" {
				return email
			}
		}
	}
	return findEmailDeep(data)
}

type visitKey struct {
	kind reflect.Kind
	ptr  uintptr
	len  int
}

// findEmailDeep is a depth-first scan for any string containing "@" and ".".
// Direct string values of a node are checked before its children; keys are
// visited in sorted order so the result is deterministic.
func findEmailDeep(root any) string {
	seen := make(map[visitKey]bool)

	var walk func(v any, depth int) string
	walk = func(v any, depth int) string {
		if depth > maxEmailSearchDepth {
			return ""
		}

		var children []any
		switch node := v.(type) {
		case map[string]any:
			if !markVisited(seen, node) {
				return ""
			}
			keys := make([]string, 0, len(node))
			for k := range node {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if s, ok := node[k].(string); ok && looksLikeEmail(s) {
					return strings.TrimSpace(s)
				}
			}
			for _, k := range keys {
				children = append(children, node[k])
			}
		case []any:
			if !markVisited(seen, node) {
				return ""
			}
			for _, item := range node {
				if s, ok := item.(string); ok && looksLikeEmail(s) {
					return strings.TrimSpace(s)
				}
			}
			children = node
		default:
			return ""
		}

		for _, child := range children {
			if found := walk(child, depth+1); found != "" {
				return found
			}
		}
		return ""
	}

	return walk(root, 0)
}

func markVisited(seen map[visitKey]bool, node any) bool {
	rv := reflect.ValueOf(node)
	if rv.Len() == 0 {
		return false
	}
	key := visitKey{kind: rv.Kind(), ptr: rv.Pointer(), len: rv.Len()}
	if seen[key] {
		return false
	}
	seen[key] = true
	return true
}

func looksLikeEmail(s string) bool {
	return strings.Contains(s, "@") && strings.Contains(s, ".")
}

func stringAt(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringAt(m, k); s != "" {
			return s
		}
	}
	return ""
}

func firstMap(m map[string]any, keys ...string) map[string]any {
	for _, k := range keys {
		if obj, ok := m[k].(map[string]any); ok {
			return obj
		}
	}
	return nil
}
