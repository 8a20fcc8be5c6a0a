package email

import (
	"fmt"
	"strings"
	"time"

	"github.com/meetwindow/meetwindow/services/scheduling-service/internal/timeslot"
)

// Message is a rendered notification, ready to hand to a Sender.
type Message struct {
	To      string
	Subject string
	Body    string
}

// IntervalSummary renders an interval for humans, in the given zone.
// Example: "Tuesday, September 1, 10:00 AM - 11:00 AM MST".
func IntervalSummary(iv timeslot.Interval, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	start := iv.Start.In(loc)
	end := iv.End.In(loc)
	return fmt.Sprintf("%s - %s",
		start.Format("Monday, January 2, 3:04 PM"),
		end.Format("3:04 PM MST"),
	)
}

// Approval is the mail sent to the calendar owner when a meeting is
// requested. It carries the signed link that confirms the booking.
func Approval(ownerEmail, requesterName, requesterEmail, location, dateSummary, timeZone, approveURL string) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "%s has requested a meeting on %s, via %s.\n\n", requesterName, dateSummary, location)
	fmt.Fprintf(&b, "Their local timezone is %s.\n\n", timeZone)
	fmt.Fprintf(&b, "Accept the meeting:\n%s\n\n", approveURL)
	fmt.Fprintf(&b, "To decline, reply to %s directly.\n", requesterEmail)
	return Message{
		To:      ownerEmail,
		Subject: fmt.Sprintf("%s wants to meet with you", requesterName),
		Body:    b.String(),
	}
}

// Confirmation is the mail sent back to the requester acknowledging that
// the request was received and is pending review.
func Confirmation(requesterEmail, requesterName, dateSummary string) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", requesterName)
	fmt.Fprintf(&b, "Just confirming that your request for %s has been received. ", dateSummary)
	b.WriteString("It will be reviewed as soon as possible and you will get a confirmation once it is accepted.\n\n")
	b.WriteString("Thanks!\n")
	return Message{
		To:      requesterEmail,
		Subject: "Your meeting request",
		Body:    b.String(),
	}
}

// Booked is the mail sent to the requester once the owner accepted and the
// calendar event exists.
func Booked(requesterEmail, requesterName, dateSummary, eventURL string) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", requesterName)
	fmt.Fprintf(&b, "Your meeting on %s is confirmed.\n\n", dateSummary)
	if eventURL != "" {
		fmt.Fprintf(&b, "Calendar event:\n%s\n\n", eventURL)
	}
	b.WriteString("See you then!\n")
	return Message{
		To:      requesterEmail,
		Subject: "Your meeting is confirmed",
		Body:    b.String(),
	}
}
