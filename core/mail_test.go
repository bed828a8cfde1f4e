package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appfs "github.com/trezcool/academia/fs"
)

func TestParseTemplates(t *testing.T) {
	parseTemplates(appfs.FS)

	for _, name := range []string{"account_status", "enrollment_status", "password_reset"} {
		entry, ok := templates[name]
		if assert.True(t, ok, "template %q not loaded", name) {
			assert.Contains(t, entry, ".txt")
			assert.Contains(t, entry, ".gohtml")
		}
	}
	assert.NotContains(t, templates, "_base")
}

func TestEmailMessage_Render(t *testing.T) {
	tests := []struct {
		name     string
		msg      EmailMessage
		wantText []string
	}{
		{
			name: "account status",
			msg: EmailMessage{TemplateName: "account_status", TemplateData: map[string]interface{}{
				"Name": "Jane", "Status": "ACTIVE",
			}},
			wantText: []string{"Hello Jane,", "Your account has been approved."},
		},
		{
			name: "enrollment status",
			msg: EmailMessage{TemplateName: "enrollment_status", TemplateData: map[string]interface{}{
				"Name": "Jane", "CourseID": "c1", "CourseTitle": "Go 101", "Status": "APPROVED",
			}},
			wantText: []string{"Hello Jane,", `Your enrollment in "Go 101" is now APPROVED.`, "/courses/c1"},
		},
		{
			name: "password reset",
			msg: EmailMessage{TemplateName: "password_reset", TemplateData: map[string]interface{}{
				"Name": "Jane", "UID": "dWlk", "Token": "abc-def",
			}},
			wantText: []string{"Hello Jane,", "/password-reset/dWlk/abc-def"},
		},
		{
			name:     "plain body",
			msg:      EmailMessage{BodyStr: "just text"},
			wantText: []string{"just text"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.msg
			require.NoError(t, msg.Render())
			for _, want := range tt.wantText {
				assert.Contains(t, msg.TextContent, want)
			}
			if msg.TemplateName != "" {
				assert.Contains(t, msg.TextContent, "The Academia team")
				assert.Contains(t, msg.HTMLContent, "<html")
				assert.Contains(t, msg.HTMLContent, "Hello Jane,")
			}
		})
	}
}
