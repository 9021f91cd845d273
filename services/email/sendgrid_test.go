package emailsvc

import (
	"net/http"
	"net/mail"
	"testing"

	"github.com/pkg/errors"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/wazazi/core"
	testutil "github.com/trezcool/wazazi/tests"
)

func TestSendgridService_send(t *testing.T) {
	orig := retryBackoff
	retryBackoff = 0
	t.Cleanup(func() { retryBackoff = orig })

	type reply struct {
		status int
		err    error
	}
	tests := []struct {
		name      string
		replies   []reply
		wantSent  bool
		wantCalls int
	}{
		{name: "accepted", replies: []reply{{status: http.StatusAccepted}}, wantSent: true, wantCalls: 1},
		{name: "rejected", replies: []reply{{status: http.StatusBadRequest}}, wantCalls: 1},
		{name: "throttled then accepted", replies: []reply{{status: http.StatusTooManyRequests}, {status: http.StatusAccepted}}, wantSent: true, wantCalls: 2},
		{name: "network error then accepted", replies: []reply{{err: errors.New("reset by peer")}, {status: http.StatusAccepted}}, wantSent: true, wantCalls: 2},
		{
			name:      "gives up",
			replies:   []reply{{status: http.StatusBadGateway}, {status: http.StatusBadGateway}, {status: http.StatusBadGateway}, {status: http.StatusAccepted}},
			wantCalls: sendAttempts,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			var got *sgmail.SGMailV3
			svc := newSendgridService(testutil.NewConfig(), testutil.NewLogger(), func(m *sgmail.SGMailV3) (int, string, error) {
				r := tt.replies[calls]
				calls++
				got = m
				return r.status, "", r.err
			})

			sent := svc.send(core.EmailMessage{
				To:           []mail.Address{{Name: "Mama", Address: "mama@test.cd"}},
				Subject:      "Password Reset",
				TemplateName: "password_reset",
				TextContent:  "hello",
			})
			assert.Equal(t, tt.wantSent, sent)
			assert.Equal(t, tt.wantCalls, calls)
			if assert.NotNil(t, got) {
				assert.Equal(t, []string{"TEST", "password_reset"}, got.Categories)
				assert.Equal(t, "[Wazazi] Password Reset", got.Personalizations[0].Subject)
				assert.Len(t, got.Content, 1)
			}
		})
	}
}
