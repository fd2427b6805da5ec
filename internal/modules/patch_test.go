package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const routesFixture = `Rails.application.routes.draw do
  root "home#index"
end
`

const applicationFixture = `require_relative "boot"

module Shop
  class Application < Rails::Application
    config.load_defaults 7.1
  end
end
`

func TestInsertBlock_Routes(t *testing.T) {
	out, changed := insertBlock(routesFixture, "resources :plans\n", "billing", "routes", "  ", finalEndPattern)
	assert.True(t, changed)
	assert.Equal(t, `Rails.application.routes.draw do
  root "home#index"
  # railsplan:billing:routes begin
  resources :plans
  # railsplan:billing:routes end
end
`, out)

	again, changed := insertBlock(out, "resources :plans\n", "billing", "routes", "  ", finalEndPattern)
	assert.False(t, changed)
	assert.Equal(t, out, again)
}

func TestInsertBlock_ApplicationClass(t *testing.T) {
	out, changed := insertBlock(applicationFixture, "config.autoload_paths << Rails.root.join(\"app/domains\")", "billing", "application", "    ", classEndPattern)
	assert.True(t, changed)
	assert.Contains(t, out, `    config.load_defaults 7.1
    # railsplan:billing:application begin
    config.autoload_paths << Rails.root.join("app/domains")
    # railsplan:billing:application end
  end
end`)
}

func TestInsertBlock_NoAnchor(t *testing.T) {
	out, changed := insertBlock("# empty\n", "get :ping", "ops", "routes", "", finalEndPattern)
	assert.True(t, changed)
	assert.Equal(t, "# empty\n# railsplan:ops:routes begin\nget :ping\n# railsplan:ops:routes end\n", out)
}

func TestRemoveBlock_RoundTrip(t *testing.T) {
	for _, fixture := range []string{routesFixture, applicationFixture} {
		patched, changed := insertBlock(fixture, "line one\nline two", "cms", "routes", "  ", finalEndPattern)
		assert.True(t, changed)

		restored, removed := removeBlock(patched, "cms", "routes")
		assert.True(t, removed)
		assert.Equal(t, fixture, restored)
	}

	_, removed := removeBlock(routesFixture, "cms", "routes")
	assert.False(t, removed)
}

func TestAppendBlock(t *testing.T) {
	out, changed := appendBlock("User.create!\n", "Plan.create!(name: 'Free')\n", "billing", "seeds")
	assert.True(t, changed)
	assert.Equal(t, "User.create!\n# railsplan:billing:seeds begin\nPlan.create!(name: 'Free')\n# railsplan:billing:seeds end\n", out)

	again, changed := appendBlock(out, "Plan.create!(name: 'Free')\n", "billing", "seeds")
	assert.False(t, changed)
	assert.Equal(t, out, again)

	restored, removed := removeBlock(out, "billing", "seeds")
	assert.True(t, removed)
	assert.Equal(t, "User.create!\n", restored)
}
