package core

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailMessage_Render(t *testing.T) {
	type resetData struct {
		Name, UID, Token string
	}

	t.Run("password reset template", func(t *testing.T) {
		msg := &EmailMessage{
			To:           []mail.Address{{Name: "Mama", Address: "mama@test.cd"}},
			Subject:      "Password Reset",
			TemplateName: "password_reset",
			TemplateData: resetData{Name: "Mama", UID: "dTE", Token: "abc-def"},
		}
		require.NoError(t, msg.Render("http://localhost:19006"))

		assert.True(t, msg.HasContent())
		assert.Contains(t, msg.TextContent, "Hello Mama,")
		assert.Contains(t, msg.TextContent, "http://localhost:19006/password-reset/dTE/abc-def")
		assert.Contains(t, msg.HTMLContent, "http://localhost:19006/password-reset/dTE/abc-def")
	})

	t.Run("plain body", func(t *testing.T) {
		msg := &EmailMessage{BodyStr: "hello"}
		require.NoError(t, msg.Render(""))
		assert.Equal(t, "hello", msg.TextContent)
	})

	t.Run("unknown template", func(t *testing.T) {
		msg := &EmailMessage{TemplateName: "nope"}
		assert.Error(t, msg.Render(""))
	})
}
