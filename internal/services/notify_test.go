package services

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"gopkg.in/gomail.v2"

	"settlementsam/internal/models"
	"settlementsam/internal/pdf"
)

type capturedMail struct {
	mu   sync.Mutex
	msgs []*gomail.Message
}

func (c *capturedMail) DialAndSend(m ...*gomail.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m...)
	return nil
}

func TestEmailServiceSendLead(t *testing.T) {
	mail := &capturedMail{}
	svc := NewEmailService(mail, "leads@settlementsam.test", "Settlement Sam", pdf.NewSummaryGenerator("Settlement Sam", ""), nil)

	client := &models.Client{ID: "c1", Name: "Hale & Ortiz LLP", DeliveryEmail: "intake@hale.test"}
	lead := &models.Lead{ID: "l1", FirstName: "Dana", LastName: "Reyes", Phone: "5125550134", State: "TX", Score: 80, Tier: "HOT", CreatedAt: time.Now()}
	require.NoError(t, svc.SendLead(context.Background(), client, lead))

	require.Len(t, mail.msgs, 1)
	m := mail.msgs[0]
	assert.Equal(t, []string{"intake@hale.test"}, m.GetHeader("To"))
	assert.Equal(t, []string{"New HOT lead: Dana Reyes (TX)"}, m.GetHeader("Subject"))

	var buf strings.Builder
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `filename="lead-l1.pdf"`)
	assert.Contains(t, buf.String(), "Hale &amp; Ortiz LLP")
}

func TestTelegramNotifier(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Sam","username":"sam_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			require.NoError(t, r.ParseForm())
			mu.Lock()
			sent = append(sent, r.PostForm.Get("chat_id")+"|"+r.PostForm.Get("text"))
			mu.Unlock()
			io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	n, err := NewTelegramNotifier("123:abc", 42, srv.URL+"/bot%s/%s", nil)
	require.NoError(t, err)
	require.NoError(t, n.Notify(context.Background(), "HOT lead <Dana>"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"42|HOT lead &lt;Dana&gt;"}, sent)
}

func TestSheetsServiceAppendLead(t *testing.T) {
	var gotPath, gotQuery, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotPath, gotQuery, gotBody = r.URL.Path, r.URL.RawQuery, string(b)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"spreadsheetId":"sheet-1","updates":{"updatedRows":1}}`)
	}))
	defer srv.Close()

	svc, err := NewSheetsService(context.Background(), "", "Leads!A1", nil,
		option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication(), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	lead := &models.Lead{ID: "l1", FirstName: "Dana", Phone: "5125550134", Score: 80, Tier: "HOT", CreatedAt: time.Now()}
	require.NoError(t, svc.AppendLead(context.Background(), "sheet-1", lead))

	assert.Contains(t, gotPath, "/spreadsheets/sheet-1/values/")
	assert.Contains(t, gotQuery, "valueInputOption=USER_ENTERED")
	assert.Contains(t, gotQuery, "insertDataOption=INSERT_ROWS")
	assert.Contains(t, gotBody, "5125550134")
}
