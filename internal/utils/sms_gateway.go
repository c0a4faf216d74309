package utils

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Carrier email-to-SMS gateway domains.
var carrierGateways = map[string]string{
	"att":        "txt.att.net",
	"verizon":    "vtext.com",
	"tmobile":    "tmomail.net",
	"sprint":     "messaging.sprintpcs.com",
	"uscellular": "email.uscc.net",
	"boost":      "sms.myboostmobile.com",
	"cricket":    "sms.cricketwireless.net",
	"metropcs":   "mymetropcs.com",
	"googlefi":   "msg.fi.google.com",
	"visible":    "vmobl.com",
}

var ErrUnknownCarrier = errors.New("unknown carrier")

// NormalizeCarrier lowercases and strips separators: "T-Mobile" -> "tmobile".
func NormalizeCarrier(s string) string {
	r := strings.NewReplacer("-", "", " ", "", "_", "", "&", "", ".", "")
	return r.Replace(strings.ToLower(strings.TrimSpace(s)))
}

func Carriers() []string {
	out := make([]string, 0, len(carrierGateways))
	for c := range carrierGateways {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// GatewayAddresses returns the SMS gateway addresses for phone. A known
// carrier gets one address; an empty carrier fans out to every gateway.
func GatewayAddresses(phone, carrier string) ([]string, error) {
	c := NormalizeCarrier(carrier)
	if c == "" {
		out := make([]string, 0, len(carrierGateways))
		for _, name := range Carriers() {
			out = append(out, phone+"@"+carrierGateways[name])
		}
		return out, nil
	}
	domain, ok := carrierGateways[c]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCarrier, carrier)
	}
	return []string{phone + "@" + domain}, nil
}

// MailSender is satisfied by *gomail.Dialer.
type MailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMSGateway delivers short texts through carrier email-to-SMS bridges.
type SMSGateway struct {
	Sender MailSender
	From   string
	Brand  string
	DryRun bool
	Log    *zap.Logger
}

func NewSMSGateway(sender MailSender, from, brand string, dryRun bool, log *zap.Logger) *SMSGateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &SMSGateway{Sender: sender, From: from, Brand: brand, DryRun: dryRun, Log: log}
}

// SendCode texts the verification code. With several gateways the send
// succeeds when at least one of them accepted the message.
func (g *SMSGateway) SendCode(ctx context.Context, phone, carrier, code string) error {
	addrs, err := GatewayAddresses(phone, carrier)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("%s code: %s. Expires in 10 minutes.", g.Brand, code)

	if g.DryRun || g.Sender == nil {
		g.Log.Info("[sms][dry-run] code not sent",
			zap.String("phone", MaskPhone(phone)), zap.Int("gateways", len(addrs)))
		return nil
	}

	var result *multierror.Error
	delivered := 0
	for _, addr := range addrs {
		if err := ctx.Err(); err != nil {
			return err
		}
		m := gomail.NewMessage()
		m.SetHeader("From", g.From)
		m.SetHeader("To", addr)
		m.SetBody("text/plain", text)
		if err := g.Sender.DialAndSend(m); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", addr[strings.IndexByte(addr, '@')+1:], err))
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return fmt.Errorf("sms gateway: %w", result.ErrorOrNil())
	}
	if result != nil {
		g.Log.Warn("[sms][send] partial gateway failure",
			zap.String("phone", MaskPhone(phone)), zap.Int("failed", len(result.Errors)))
	}
	return nil
}
