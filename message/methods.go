package message

// MethodTable maps a method token to whether it accepts a request body.
// Configurable per spec.md §4.F ("Method is looked up in a configurable
// table"); DefaultMethods is the bounded set spec.md §4 names explicitly.
type MethodTable map[string]bool

// DefaultMethods is the out-of-the-box supported-method set: GET, HEAD,
// OPTIONS, TRACE and CONNECT never accept a body; POST and PUT do; DELETE
// does not, matching the original implementation's own table (DELETE
// requests with a body are unusual enough that the default leaves it
// out — callers can opt in with a custom MethodTable).
var DefaultMethods = MethodTable{
	"GET":     false,
	"HEAD":    false,
	"POST":    true,
	"PUT":     true,
	"DELETE":  false,
	"OPTIONS": false,
	"TRACE":   false,
	"CONNECT": false,
}

// AcceptsBody reports whether method is known and, if so, whether it
// accepts a request body.
func (t MethodTable) AcceptsBody(method string) (accepts bool, known bool) {
	accepts, known = t[method]
	return
}
