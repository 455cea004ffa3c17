package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/focusmode/focusd/internal/domain/model"
)

// Message is a channel-agnostic rendering of a notification. Webhook sinks
// post Subject and Body as one text block; the email sink uses them as
// subject line and body.
type Message struct {
	Subject string
	Body    string
}

// Compose renders a payload into a Message. Known event types get a tailored
// layout; anything else falls back to a generic rendering so new event types
// degrade gracefully instead of being dropped.
func Compose(payload model.NotificationPayload) Message {
	switch payload.Type {
	case model.NotificationPaidUser:
		return composePaidUser(payload)
	case model.NotificationNewUser:
		return composeNewUser(payload)
	case model.NotificationInactiveUser:
		return composeInactiveUser(payload)
	case model.NotificationWeeklyReport:
		return composeWeeklyReport(payload)
	case model.NotificationPaymentFailed:
		return composeUserEvent(payload, "Payment failed", "A renewal charge failed for")
	case model.NotificationCheckoutCompleted:
		return composeUserEvent(payload, "Checkout completed", "A checkout session completed for")
	case model.NotificationSubscriptionCancelled:
		return composeUserEvent(payload, "Subscription cancelled", "The subscription ended for")
	default:
		return composeGeneric(payload)
	}
}

func composePaidUser(payload model.NotificationPayload) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "%s just purchased a license.\n", displayName(payload.User))
	appendField(&b, "Email", payload.User.Email)
	appendField(&b, "License", payload.User.LicenseID)
	if payload.User.PaidAt != nil {
		appendField(&b, "Paid at", payload.User.PaidAt.UTC().Format(time.RFC3339))
	}
	appendData(&b, payload.Data)
	return Message{Subject: "New paid user", Body: b.String()}
}

func composeNewUser(payload model.NotificationPayload) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "%s just signed up.\n", displayName(payload.User))
	appendField(&b, "Email", payload.User.Email)
	if payload.User.CreatedAt != nil {
		appendField(&b, "Signed up at", payload.User.CreatedAt.UTC().Format(time.RFC3339))
	}
	appendData(&b, payload.Data)
	return Message{Subject: "New signup", Body: b.String()}
}

func composeInactiveUser(payload model.NotificationPayload) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "%s has gone quiet.\n", displayName(payload.User))
	appendField(&b, "Email", payload.User.Email)
	if payload.User.LastCheckinAt != nil {
		appendField(&b, "Last check-in", payload.User.LastCheckinAt.UTC().Format(time.RFC3339))
	} else {
		appendField(&b, "Last check-in", "never")
	}
	appendData(&b, payload.Data)
	return Message{Subject: "Inactive user", Body: b.String()}
}

func composeWeeklyReport(payload model.NotificationPayload) Message {
	var b strings.Builder
	b.WriteString("Weekly activity report.\n")
	appendData(&b, payload.Data)
	return Message{Subject: "Weekly report " + payload.ReferenceID, Body: b.String()}
}

func composeUserEvent(payload model.NotificationPayload, subject, lead string) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s.\n", lead, displayName(payload.User))
	appendField(&b, "Email", payload.User.Email)
	appendData(&b, payload.Data)
	return Message{Subject: subject, Body: b.String()}
}

func composeGeneric(payload model.NotificationPayload) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Event %s for %s.\n", payload.Type, displayName(payload.User))
	appendField(&b, "Email", payload.User.Email)
	appendField(&b, "Reference", payload.ReferenceID)
	appendData(&b, payload.Data)
	return Message{Subject: "Notification: " + string(payload.Type), Body: b.String()}
}

func displayName(user model.NotificationUser) string {
	if strings.TrimSpace(user.Name) != "" {
		return user.Name
	}
	if strings.TrimSpace(user.Email) != "" {
		return user.Email
	}
	return "user " + user.ID
}

func appendField(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, value)
}

func appendData(b *strings.Builder, data map[string]string) {
	if len(data) == 0 {
		return
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		appendField(b, k, data[k])
	}
}
