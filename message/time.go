package message

import "time"

// appendTime appends the current time in RFC 1123 GMT form
// ("Mon, 02 Jan 2006 15:04:05 GMT") to buf without going through
// time.Format's reflection-free but still allocating Layout parser,
// grounded on the teacher's dateBuf scratch-array idiom (types_server.go)
// extended with a hand-rolled breakdown so the common case allocates
// nothing beyond the caller-owned buffer.
func appendTime(buf []byte) []byte {
	t := time.Now().UTC()
	buf = append(buf, weekdayName[t.Weekday()]...)
	buf = append(buf, ',', ' ')
	buf = appendPad2(buf, t.Day())
	buf = append(buf, ' ')
	buf = append(buf, monthName[t.Month()-1]...)
	buf = append(buf, ' ')
	buf = appendPad4(buf, t.Year())
	buf = append(buf, ' ')
	buf = appendPad2(buf, t.Hour())
	buf = append(buf, ':')
	buf = appendPad2(buf, t.Minute())
	buf = append(buf, ':')
	buf = appendPad2(buf, t.Second())
	buf = append(buf, " GMT"...)
	return buf
}

var weekdayName = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

var monthName = [...]string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

func appendPad2(buf []byte, v int) []byte {
	return append(buf, byte('0'+v/10), byte('0'+v%10))
}

func appendPad4(buf []byte, v int) []byte {
	return append(buf, byte('0'+v/1000), byte('0'+(v/100)%10), byte('0'+(v/10)%10), byte('0'+v%10))
}
