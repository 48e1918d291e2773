package rtsp

type Method string

const (
	MethodDescribe Method = "DESCRIBE"
	MethodSetup    Method = "SETUP"
	MethodPlay     Method = "PLAY"
	MethodPause    Method = "PAUSE"
	MethodTeardown Method = "TEARDOWN"
)

// Methods lists every command the server understands.
var Methods = []Method{MethodDescribe, MethodSetup, MethodPlay, MethodPause, MethodTeardown}

func (m Method) String() string {
	return string(m)
}

func (m Method) Valid() bool {
	for _, known := range Methods {
		if m == known {
			return true
		}
	}
	return false
}
