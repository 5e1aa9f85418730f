package protocol

import "fmt"

// RequestKind is the int32 tag opening every request.
type RequestKind int32

const (
	KindPing         RequestKind = 0x00
	KindStop         RequestKind = 0x01
	KindReconfig     RequestKind = 0x02
	KindFilePut      RequestKind = 0x10
	KindFileGet      RequestKind = 0x11
	KindFileDelete   RequestKind = 0x12
	KindServiceStart RequestKind = 0x20
	KindServiceStop  RequestKind = 0x21
	KindServiceWatch RequestKind = 0x22
)

func (k RequestKind) String() string {
	switch k {
	case KindPing:
		return "PING"
	case KindStop:
		return "STOP"
	case KindReconfig:
		return "RECONFIG"
	case KindFilePut:
		return "FILE_PUT"
	case KindFileGet:
		return "FILE_GET"
	case KindFileDelete:
		return "FILE_DELETE"
	case KindServiceStart:
		return "SERVICE_START"
	case KindServiceStop:
		return "SERVICE_STOP"
	case KindServiceWatch:
		return "SERVICE_WATCH"
	default:
		return fmt.Sprintf("REQUEST(0x%x)", int32(k))
	}
}

// ResponseKind is the int32 tag opening every response.
type ResponseKind int32

const (
	KindNoop    ResponseKind = 0x00
	KindSuccess ResponseKind = 0x01
	KindFail    ResponseKind = 0x02
	KindFile    ResponseKind = 0x10
)

func (k ResponseKind) String() string {
	switch k {
	case KindNoop:
		return "NOOP"
	case KindSuccess:
		return "SUCCESS"
	case KindFail:
		return "FAIL"
	case KindFile:
		return "FILE"
	default:
		return fmt.Sprintf("RESPONSE(0x%x)", int32(k))
	}
}

// Request is the closed set of request messages. FILE_PUT bodies are streamed
// after the header by the caller.
type Request interface {
	Kind() RequestKind
	isRequest()
}

type PingRequest struct{}

type StopRequest struct{}

type ReconfigRequest struct {
	ConfigPath string
}

type FilePutRequest struct {
	DestPath string
	Length   int64
}

type FileGetRequest struct {
	SrcPath string
}

type FileDeleteRequest struct {
	Path string
}

type ServiceStartRequest struct {
	NodeID int32
}

type ServiceStopRequest struct {
	NodeID int32
}

type ServiceWatchRequest struct {
	NodeID    int32
	TailLines int32
}

func (PingRequest) Kind() RequestKind         { return KindPing }
func (StopRequest) Kind() RequestKind         { return KindStop }
func (ReconfigRequest) Kind() RequestKind     { return KindReconfig }
func (FilePutRequest) Kind() RequestKind      { return KindFilePut }
func (FileGetRequest) Kind() RequestKind      { return KindFileGet }
func (FileDeleteRequest) Kind() RequestKind   { return KindFileDelete }
func (ServiceStartRequest) Kind() RequestKind { return KindServiceStart }
func (ServiceStopRequest) Kind() RequestKind  { return KindServiceStop }
func (ServiceWatchRequest) Kind() RequestKind { return KindServiceWatch }

func (PingRequest) isRequest()         {}
func (StopRequest) isRequest()         {}
func (ReconfigRequest) isRequest()     {}
func (FilePutRequest) isRequest()      {}
func (FileGetRequest) isRequest()      {}
func (FileDeleteRequest) isRequest()   {}
func (ServiceStartRequest) isRequest() {}
func (ServiceStopRequest) isRequest()  {}
func (ServiceWatchRequest) isRequest() {}

// Response is the closed set of response messages. FILE bodies are streamed
// after the header.
type Response interface {
	Kind() ResponseKind
	isResponse()
}

type NoopResponse struct{}

type SuccessResponse struct {
	Header  string
	Message string
}

type FailResponse struct {
	Header  string
	Message string
}

type FileResponse struct {
	Length int64
}

func (NoopResponse) Kind() ResponseKind    { return KindNoop }
func (SuccessResponse) Kind() ResponseKind { return KindSuccess }
func (FailResponse) Kind() ResponseKind    { return KindFail }
func (FileResponse) Kind() ResponseKind    { return KindFile }

func (NoopResponse) isResponse()    {}
func (SuccessResponse) isResponse() {}
func (FailResponse) isResponse()    {}
func (FileResponse) isResponse()    {}
