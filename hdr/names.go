package hdr

// Header names message.Response actually sets: the content negotiation
// pair, the connection-management header, and cookie emission. This is
// deliberately not the full MIME header-name set a general HTTP library
// would carry — server/conn.go never builds a response with any other
// header, so there's nothing else for this package to name.
const (
	ContentType     = "Content-Type"
	Connection      = "Connection"
	ContentLength   = "Content-Length"
	Date            = "Date"
	SetCookieHeader = "Set-Cookie"
)

// TimeFormat is the wire format for the Date header (RFC 7231 §7.1.1.1,
// IMF-fixdate). message.Response sizes its date-formatting scratch array
// off len(TimeFormat).
const TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"
