package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToSnakeCase(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"User", "user"},
		{"BlogPost", "blog_post"},
		{"HTTPRequest", "http_request"},
		{"Admin::User", "admin/user"},
		{"OAuth2Token", "o_auth2_token"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ToSnakeCase(tt.in))
		})
	}
}

func TestSingularizePluralize(t *testing.T) {
	cases := map[string]string{
		"posts":      "post",
		"categories": "category",
		"boxes":      "box",
		"addresses":  "address",
		"news":       "new",
	}
	for plural, singular := range cases {
		assert.Equal(t, singular, Singularize(plural), plural)
	}

	assert.Equal(t, "categories", Pluralize("category"))
	assert.Equal(t, "boxes", Pluralize("box"))
	assert.Equal(t, "keys", Pluralize("key"))
	assert.Equal(t, "users", Pluralize("user"))
}

func TestExpandERB(t *testing.T) {
	env := map[string]string{"OPENAI_API_KEY": "sk-test"}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	tests := []struct {
		name, in, want string
	}{
		{"bracket single quotes", "api_key: <%= ENV['OPENAI_API_KEY'] %>", "api_key: sk-test"},
		{"bracket double quotes", `api_key: <%= ENV["OPENAI_API_KEY"] %>`, "api_key: sk-test"},
		{"fetch", "key: <%= ENV.fetch('OPENAI_API_KEY') %>", "key: sk-test"},
		{"fetch fallback", `host: <%= ENV.fetch("DB_HOST", "localhost") %>`, "host: localhost"},
		{"fetch block fallback", `url: <%= ENV.fetch("REDIS_URL") { "redis://localhost:6379/1" } %>`, "url: redis://localhost:6379/1"},
		{"unset", "key: <%= ENV['MISSING'] %>", "key: "},
		{"other erb untouched", "pool: <%= 5 %>", "pool: <%= 5 %>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandERBWith(tt.in, lookup))
		})
	}
}
