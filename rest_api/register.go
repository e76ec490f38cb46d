package rest_api

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

type HTTPVerb int

const (
	Unknown HTTPVerb = iota
	GET
	DELETE
	POST
	PUT
)

type RestMethod struct {
	Verb    HTTPVerb
	Path    string
	Handler func(c *gin.Context)
}

// Registry holds the REST methods a router is built from.
type Registry struct {
	methods map[string]RestMethod
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{methods: make(map[string]RestMethod)}
}

// RegisterMethod is a helper function for Register.
func (r *Registry) RegisterMethod(verb HTTPVerb, path string, h func(c *gin.Context)) error {
	m := RestMethod{
		Verb:    verb,
		Path:    path,
		Handler: h,
	}
	return r.Register(m)
}

// Register your REST method using this function.
func (r *Registry) Register(m RestMethod) error {
	key := fmt.Sprintf("%d_%s", m.Verb, m.Path)
	if _, exists := r.methods[key]; exists {
		return fmt.Errorf("can't add %s, an existing handler in REST method map exists", key)
	}
	r.methods[key] = m
	r.order = append(r.order, key)
	return nil
}

// RestMethods returns the registered methods in registration order.
func (r *Registry) RestMethods() []RestMethod {
	out := make([]RestMethod, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.methods[k])
	}
	return out
}

// Mount adds every registered method to the router group, each wrapped by wrap.
func (r *Registry) Mount(g gin.IRoutes, wrap func(func(c *gin.Context)) func(c *gin.Context)) {
	for _, rm := range r.RestMethods() {
		h := wrap(rm.Handler)
		switch rm.Verb {
		case GET:
			g.GET(rm.Path, h)
		case DELETE:
			g.DELETE(rm.Path, h)
		case POST:
			g.POST(rm.Path, h)
		case PUT:
			g.PUT(rm.Path, h)
		default:
			panic(fmt.Sprintf("HTTP verb %d not supported", rm.Verb))
		}
	}
}
