package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_Substitution(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("Dear {{ name }}, re: {{ role }} at {{ company }}",
		map[string]interface{}{"name": "Ann", "role": "Dev", "company": "Acme"})
	require.NoError(t, err)
	assert.Equal(t, "Dear Ann, re: Dev at Acme", out)
}

func TestRender_MissingVariableRendersEmpty(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("Hi {{ name }}{{ nothere }}!", map[string]interface{}{"name": "Bo"})
	require.NoError(t, err)
	assert.Equal(t, "Hi Bo!", out)
}

func TestRender_ControlStructures(t *testing.T) {
	r := NewRenderer()
	src := "{% if reason %}Reason: {{ reason }}{% else %}No reason given{% endif %}"

	out, err := r.Render(src, map[string]interface{}{"reason": "role filled"})
	require.NoError(t, err)
	assert.Equal(t, "Reason: role filled", out)

	out, err = r.Render(src, map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "No reason given", out)
}

func TestRender_SyntaxErrorSurfaces(t *testing.T) {
	r := NewRenderer()
	_, err := r.Render("{% if %}", nil)
	assert.Error(t, err)
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"tags removed", "<p>Hello <b>world</b></p>", "Hello world"},
		{"trims", "  <div>x</div>  ", "x"},
		{"only tags", "<br><hr/>", ""},
		{"no tags", "plain", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripHTML(tt.in))
		})
	}
}
