package utils

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "formatted", in: "(512) 555-0134", want: "5125550134"},
		{name: "country code", in: "+1 512 555 0134", want: "5125550134"},
		{name: "too short", in: "555-0134", wantErr: true},
		{name: "leading one without country code", in: "1125550134", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPhone)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "******0134", MaskPhone("5125550134"))
	assert.Equal(t, "****", MaskPhone("12"))
}

func TestNewNumericCode(t *testing.T) {
	for _, n := range []int{4, 5, 6} {
		code, err := NewNumericCode(n)
		require.NoError(t, err)
		assert.Len(t, code, n)
		assert.Empty(t, strings.Trim(code, "0123456789"))
	}
	_, err := NewNumericCode(0)
	assert.Error(t, err)
}

func TestGatewayAddresses(t *testing.T) {
	addrs, err := GatewayAddresses("5125550134", "T-Mobile")
	require.NoError(t, err)
	assert.Equal(t, []string{"5125550134@tmomail.net"}, addrs)

	all, err := GatewayAddresses("5125550134", "")
	require.NoError(t, err)
	assert.Len(t, all, len(Carriers()))

	_, err = GatewayAddresses("5125550134", "carrier pigeon")
	assert.ErrorIs(t, err, ErrUnknownCarrier)
}

type recordingSender struct {
	mu     sync.Mutex
	to     []string
	failOn string
}

func (r *recordingSender) DialAndSend(msgs ...*gomail.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		to := m.GetHeader("To")[0]
		if r.failOn != "" && strings.HasSuffix(to, r.failOn) {
			return errors.New("smtp 550")
		}
		r.to = append(r.to, to)
	}
	return nil
}

func TestSMSGatewaySendCode(t *testing.T) {
	ctx := context.Background()

	s := &recordingSender{}
	g := NewSMSGateway(s, "noreply@example.test", "Settlement Sam", false, nil)
	require.NoError(t, g.SendCode(ctx, "5125550134", "verizon", "123456"))
	assert.Equal(t, []string{"5125550134@vtext.com"}, s.to)

	failing := &recordingSender{failOn: "vtext.com"}
	g = NewSMSGateway(failing, "noreply@example.test", "Settlement Sam", false, nil)
	assert.Error(t, g.SendCode(ctx, "5125550134", "verizon", "123456"))

	// fan-out tolerates individual gateway failures
	assert.NoError(t, g.SendCode(ctx, "5125550134", "", "123456"))
	assert.Len(t, failing.to, len(Carriers())-1)
}

func TestSMSGatewayDryRun(t *testing.T) {
	s := &recordingSender{}
	g := NewSMSGateway(s, "noreply@example.test", "Settlement Sam", true, nil)
	require.NoError(t, g.SendCode(context.Background(), "5125550134", "att", "1234"))
	assert.Empty(t, s.to)
}
