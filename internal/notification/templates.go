package notification

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

type StatusNotice struct {
	OrderID      string
	CustomerName string
	Status       string
	TrackingURL  string
	Tracking     string
	Note         string
}

type PaymentNotice struct {
	OrderID      string
	CustomerName string
	Amount       string
	Reference    string
	TrackingURL  string
}

type statusCopy struct {
	Subject  string
	Headline string
	Body     string
}

var statusCopies = map[string]statusCopy{
	"confirmed": {
		Subject:  "Order %s confirmed",
		Headline: "We have received your order",
		Body:     "Your order has been placed and is waiting for payment confirmation.",
	},
	"submitted": {
		Subject:  "Payment received for order %s",
		Headline: "Payment received",
		Body:     "Your payment has been confirmed. We will start preparing your order shortly.",
	},
	"processing": {
		Subject:  "Order %s is being processed",
		Headline: "Your order is being prepared",
		Body:     "Our team is packing your jerseys and getting them ready to ship.",
	},
	"in_transit": {
		Subject:  "Order %s is on the way",
		Headline: "Your order has shipped",
		Body:     "Your package has left our warehouse and is in transit.",
	},
	"out_for_delivery": {
		Subject:  "Order %s is out for delivery",
		Headline: "Out for delivery",
		Body:     "A rider is on the way with your order. Please keep your phone close.",
	},
	"delivered": {
		Subject:  "Order %s delivered",
		Headline: "Delivered",
		Body:     "Your order has been delivered. Thank you for shopping with Cediman.",
	},
	"cancelled": {
		Subject:  "Order %s cancelled",
		Headline: "Order cancelled",
		Body:     "Your order has been cancelled. Contact support if this was unexpected.",
	},
}

var statusHTML = htmltemplate.Must(htmltemplate.New("status").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>{{.Headline}}</h2>
  <p>Hi {{if .CustomerName}}{{.CustomerName}}{{else}}there{{end}},</p>
  <p>{{.Body}}</p>
  <p><strong>Order:</strong> {{.OrderID}}</p>
  {{if .Tracking}}<p><strong>Tracking number:</strong> {{.Tracking}}</p>{{end}}
  {{if .Note}}<p>{{.Note}}</p>{{end}}
  <p><a href="{{.TrackingURL}}">Track your order</a></p>
  <p>Cediman</p>
</body>
</html>`))

var statusText = texttemplate.Must(texttemplate.New("status").Parse(`{{.Headline}}

Hi {{if .CustomerName}}{{.CustomerName}}{{else}}there{{end}},

{{.Body}}

Order: {{.OrderID}}
{{if .Tracking}}Tracking number: {{.Tracking}}
{{end}}{{if .Note}}{{.Note}}
{{end}}Track your order: {{.TrackingURL}}
`))

var statusSMS = texttemplate.Must(texttemplate.New("sms").Parse(
	`Cediman: {{.Headline}}. Order {{.OrderID}}.{{if .Tracking}} Tracking: {{.Tracking}}.{{end}} Track: {{.TrackingURL}}`,
))

var paymentHTML = htmltemplate.Must(htmltemplate.New("payment").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>Payment received</h2>
  <p>Hi {{if .CustomerName}}{{.CustomerName}}{{else}}there{{end}},</p>
  <p>We have received your payment of GHS {{.Amount}} for order {{.OrderID}}.</p>
  <p><strong>Payment reference:</strong> {{.Reference}}</p>
  <p><a href="{{.TrackingURL}}">Track your order</a></p>
  <p>Cediman</p>
</body>
</html>`))

var paymentText = texttemplate.Must(texttemplate.New("payment").Parse(`Payment received

Hi {{if .CustomerName}}{{.CustomerName}}{{else}}there{{end}},

We have received your payment of GHS {{.Amount}} for order {{.OrderID}}.
Payment reference: {{.Reference}}

Track your order: {{.TrackingURL}}
`))

type statusView struct {
	StatusNotice
	Headline string
	Body     string
}

func lookupCopy(status string) (statusCopy, error) {
	c, ok := statusCopies[status]
	if !ok {
		return statusCopy{}, fmt.Errorf("no template for status %q", status)
	}
	return c, nil
}

func StatusEmail(to string, n StatusNotice) (Message, error) {
	c, err := lookupCopy(n.Status)
	if err != nil {
		return Message{}, err
	}
	view := statusView{StatusNotice: n, Headline: c.Headline, Body: c.Body}

	var html, text bytes.Buffer
	if err := statusHTML.Execute(&html, view); err != nil {
		return Message{}, fmt.Errorf("render status html: %w", err)
	}
	if err := statusText.Execute(&text, view); err != nil {
		return Message{}, fmt.Errorf("render status text: %w", err)
	}

	return Message{
		Kind:    KindEmail,
		To:      to,
		Subject: fmt.Sprintf(c.Subject, n.OrderID),
		HTML:    html.String(),
		Text:    text.String(),
		OrderID: n.OrderID,
	}, nil
}

func StatusSMS(to string, n StatusNotice) (Message, error) {
	c, err := lookupCopy(n.Status)
	if err != nil {
		return Message{}, err
	}

	var text bytes.Buffer
	if err := statusSMS.Execute(&text, statusView{StatusNotice: n, Headline: c.Headline, Body: c.Body}); err != nil {
		return Message{}, fmt.Errorf("render status sms: %w", err)
	}

	return Message{
		Kind:    KindSMS,
		To:      to,
		Text:    strings.TrimSpace(text.String()),
		OrderID: n.OrderID,
	}, nil
}

func PaymentConfirmedEmail(to string, n PaymentNotice) (Message, error) {
	var html, text bytes.Buffer
	if err := paymentHTML.Execute(&html, n); err != nil {
		return Message{}, fmt.Errorf("render payment html: %w", err)
	}
	if err := paymentText.Execute(&text, n); err != nil {
		return Message{}, fmt.Errorf("render payment text: %w", err)
	}

	return Message{
		Kind:    KindEmail,
		To:      to,
		Subject: fmt.Sprintf("Payment received for order %s", n.OrderID),
		HTML:    html.String(),
		Text:    text.String(),
		OrderID: n.OrderID,
	}, nil
}
