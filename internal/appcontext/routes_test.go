package appcontext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const routesFixture = `Rails.application.routes.draw do
  root "pages#home"
  get "about", to: "pages#about"
  get "users/profile"
  post "/login" => "sessions#create"

  resources :posts, only: [:index, :show] do
    resources :comments, except: %i[edit update destroy]
    member do
      post :publish
    end
  end

  resource :profile, only: [:show, :update]

  namespace :admin do
    resources :users, only: :index
  end

  mount ActionCable.server => "/cable"
  frobnicate!
end
`

func TestParseRoutes(t *testing.T) {
	routes, warnings := ParseRoutes("config/routes.rb", []byte(routesFixture))

	assert.Equal(t, []Route{
		{Verb: "GET", Path: "/", Controller: "pages", Action: "home"},
		{Verb: "GET", Path: "/about", Controller: "pages", Action: "about"},
		{Verb: "GET", Path: "/users/profile", Controller: "users", Action: "profile"},
		{Verb: "POST", Path: "/login", Controller: "sessions", Action: "create"},
		{Verb: "GET", Path: "/posts", Controller: "posts", Action: "index"},
		{Verb: "GET", Path: "/posts/:id", Controller: "posts", Action: "show"},
		{Verb: "GET", Path: "/posts/:post_id/comments", Controller: "comments", Action: "index"},
		{Verb: "GET", Path: "/posts/:post_id/comments/new", Controller: "comments", Action: "new"},
		{Verb: "POST", Path: "/posts/:post_id/comments", Controller: "comments", Action: "create"},
		{Verb: "GET", Path: "/posts/:post_id/comments/:id", Controller: "comments", Action: "show"},
		{Verb: "POST", Path: "/posts/:id/publish", Controller: "posts", Action: "publish"},
		{Verb: "GET", Path: "/profile", Controller: "profiles", Action: "show"},
		{Verb: "PATCH", Path: "/profile", Controller: "profiles", Action: "update"},
		{Verb: "PUT", Path: "/profile", Controller: "profiles", Action: "update"},
		{Verb: "GET", Path: "/admin/users", Controller: "admin/users", Action: "index"},
		{Verb: "MOUNT", Path: "/cable", Controller: "ActionCable.server"},
	}, routes)

	require.Len(t, warnings, 1)
	assert.Equal(t, 21, warnings[0].Line)
}

func TestParseRoutes_FullResources(t *testing.T) {
	src := "Rails.application.routes.draw do\n  resources :articles\nend\n"

	routes, warnings := ParseRoutes("config/routes.rb", []byte(src))
	assert.Empty(t, warnings)
	require.Len(t, routes, 8)

	var actions []string
	for _, r := range routes {
		assert.Equal(t, "articles", r.Controller)
		actions = append(actions, r.Verb+" "+r.Action)
	}
	assert.Equal(t, []string{
		"GET index", "GET new", "POST create", "GET show",
		"GET edit", "PATCH update", "PUT update", "DELETE destroy",
	}, actions)
}

func TestParseRoutes_Empty(t *testing.T) {
	routes, warnings := ParseRoutes("config/routes.rb", nil)
	assert.NotNil(t, routes)
	assert.Empty(t, routes)
	assert.Empty(t, warnings)
}
