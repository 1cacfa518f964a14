package webhook

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// HandlerFunc runs the business side effects for one event. Returning an
// error makes the delivery fail so the sender redelivers it later.
type HandlerFunc func(ctx context.Context, hc *HandlerContext) error

// NamespaceResolver resolves an action inside a namespace whose handlers
// are not known statically, e.g. because picking one requires a processor
// API call. found=false reports ActionMissing.
type NamespaceResolver func(ctx context.Context, action string) (handler HandlerFunc, found bool, err error)

type ResolutionKind int

const (
	Found ResolutionKind = iota
	NamespaceMissing
	ActionMissing
)

func (k ResolutionKind) String() string {
	switch k {
	case Found:
		return "found"
	case NamespaceMissing:
		return "namespace_missing"
	case ActionMissing:
		return "action_missing"
	default:
		return "unknown"
	}
}

type Resolution struct {
	Kind      ResolutionKind
	Namespace string
	Action    string
	Handler   HandlerFunc
}

// SplitEventType splits "customer.subscription.created" into the namespace
// "customer.subscription" and the action "created". A type without a dot
// has an empty namespace.
func SplitEventType(eventType string) (namespace, action string) {
	idx := strings.LastIndex(eventType, ".")
	if idx < 0 {
		return "", eventType
	}
	return eventType[:idx], eventType[idx+1:]
}

// Registry maps hierarchical event types to handlers. It is populated at
// startup and read concurrently afterwards.
type Registry struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]HandlerFunc
	resolvers  map[string]NamespaceResolver
}

func NewRegistry() *Registry {
	return &Registry{
		namespaces: make(map[string]map[string]HandlerFunc),
		resolvers:  make(map[string]NamespaceResolver),
	}
}

// Register binds a fully qualified event type to fn. Registering the same
// type twice is a programming error and panics.
func (r *Registry) Register(eventType string, fn HandlerFunc) {
	if eventType == "" || fn == nil {
		panic("webhook: Register requires an event type and a handler")
	}

	namespace, action := SplitEventType(eventType)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.resolvers[namespace]; ok {
		panic(fmt.Sprintf("webhook: namespace %q already has a resolver", namespace))
	}

	actions, ok := r.namespaces[namespace]
	if !ok {
		actions = make(map[string]HandlerFunc)
		r.namespaces[namespace] = actions
	}
	if _, dup := actions[action]; dup {
		panic(fmt.Sprintf("webhook: handler for %q registered twice", eventType))
	}
	actions[action] = fn
}

// RegisterResolver makes namespace resolvable through resolve instead of
// a static action table.
func (r *Registry) RegisterResolver(namespace string, resolve NamespaceResolver) {
	if resolve == nil {
		panic("webhook: RegisterResolver requires a resolver")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.namespaces[namespace]; ok {
		panic(fmt.Sprintf("webhook: namespace %q already has static handlers", namespace))
	}
	r.resolvers[namespace] = resolve
}

// Resolve looks up the handler for eventType. The only error it returns is
// one raised by a namespace resolver; missing handlers are reported through
// the Resolution kind.
func (r *Registry) Resolve(ctx context.Context, eventType string) (Resolution, error) {
	namespace, action := SplitEventType(eventType)
	res := Resolution{Namespace: namespace, Action: action}

	r.mu.RLock()
	actions, static := r.namespaces[namespace]
	resolve, dynamic := r.resolvers[namespace]
	var handler HandlerFunc
	if static {
		handler = actions[action]
	}
	r.mu.RUnlock()

	switch {
	case static:
		if handler == nil {
			res.Kind = ActionMissing
			return res, nil
		}
		res.Kind = Found
		res.Handler = handler
		return res, nil

	case dynamic:
		h, found, err := resolve(ctx, action)
		if err != nil {
			return res, err
		}
		if !found || h == nil {
			res.Kind = ActionMissing
			return res, nil
		}
		res.Kind = Found
		res.Handler = h
		return res, nil

	default:
		res.Kind = NamespaceMissing
		return res, nil
	}
}

// EventTypes lists the statically registered event types.
func (r *Registry) EventTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for namespace, actions := range r.namespaces {
		for action := range actions {
			if namespace == "" {
				out = append(out, action)
				continue
			}
			out = append(out, namespace+"."+action)
		}
	}
	return out
}
