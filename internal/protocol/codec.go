package protocol

import "fmt"

// WriteRequest writes the kind tag and header fields of req and flushes.
// A FilePutRequest body must follow on c.Writer().
func WriteRequest(c *Conn, req Request) error {
	if err := c.WriteInt32(int32(req.Kind())); err != nil {
		return fmt.Errorf("write request kind: %w", err)
	}
	var err error
	switch r := req.(type) {
	case PingRequest, StopRequest:
	case ReconfigRequest:
		err = c.WriteString(r.ConfigPath)
	case FilePutRequest:
		if err = c.WriteString(r.DestPath); err == nil {
			err = c.WriteInt64(r.Length)
		}
	case FileGetRequest:
		err = c.WriteString(r.SrcPath)
	case FileDeleteRequest:
		err = c.WriteString(r.Path)
	case ServiceStartRequest:
		err = c.WriteInt32(r.NodeID)
	case ServiceStopRequest:
		err = c.WriteInt32(r.NodeID)
	case ServiceWatchRequest:
		if err = c.WriteInt32(r.NodeID); err == nil {
			err = c.WriteInt32(r.TailLines)
		}
	default:
		return fmt.Errorf("write request: unsupported type %T", req)
	}
	if err != nil {
		return fmt.Errorf("write %s payload: %w", req.Kind(), err)
	}
	return c.Flush()
}

// ReadRequest reads one request header. An unknown kind yields *UnknownKindError.
func ReadRequest(c *Conn) (Request, error) {
	raw, err := c.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("read request kind: %w", err)
	}
	kind := RequestKind(raw)

	var req Request
	switch kind {
	case KindPing:
		req = PingRequest{}
	case KindStop:
		req = StopRequest{}
	case KindReconfig:
		var r ReconfigRequest
		r.ConfigPath, err = c.ReadString()
		req = r
	case KindFilePut:
		var r FilePutRequest
		if r.DestPath, err = c.ReadString(); err == nil {
			r.Length, err = c.ReadInt64()
		}
		req = r
	case KindFileGet:
		var r FileGetRequest
		r.SrcPath, err = c.ReadString()
		req = r
	case KindFileDelete:
		var r FileDeleteRequest
		r.Path, err = c.ReadString()
		req = r
	case KindServiceStart:
		var r ServiceStartRequest
		r.NodeID, err = c.ReadInt32()
		req = r
	case KindServiceStop:
		var r ServiceStopRequest
		r.NodeID, err = c.ReadInt32()
		req = r
	case KindServiceWatch:
		var r ServiceWatchRequest
		if r.NodeID, err = c.ReadInt32(); err == nil {
			r.TailLines, err = c.ReadInt32()
		}
		req = r
	default:
		return nil, &UnknownKindError{Kind: raw}
	}
	if err != nil {
		return nil, fmt.Errorf("read %s payload: %w", kind, err)
	}
	return req, nil
}

// WriteResponse writes the kind tag and header fields of resp and flushes.
// A FileResponse body must follow on c.Writer().
func WriteResponse(c *Conn, resp Response) error {
	if err := c.WriteInt32(int32(resp.Kind())); err != nil {
		return fmt.Errorf("write response kind: %w", err)
	}
	var err error
	switch r := resp.(type) {
	case NoopResponse:
	case SuccessResponse:
		if err = c.WriteString(r.Header); err == nil {
			err = c.WriteString(r.Message)
		}
	case FailResponse:
		if err = c.WriteString(r.Header); err == nil {
			err = c.WriteString(r.Message)
		}
	case FileResponse:
		err = c.WriteInt64(r.Length)
	default:
		return fmt.Errorf("write response: unsupported type %T", resp)
	}
	if err != nil {
		return fmt.Errorf("write %s payload: %w", resp.Kind(), err)
	}
	return c.Flush()
}

// ReadResponse reads one response header.
func ReadResponse(c *Conn) (Response, error) {
	raw, err := c.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("read response kind: %w", err)
	}
	kind := ResponseKind(raw)

	var resp Response
	switch kind {
	case KindNoop:
		resp = NoopResponse{}
	case KindSuccess:
		var r SuccessResponse
		if r.Header, err = c.ReadString(); err == nil {
			r.Message, err = c.ReadString()
		}
		resp = r
	case KindFail:
		var r FailResponse
		if r.Header, err = c.ReadString(); err == nil {
			r.Message, err = c.ReadString()
		}
		resp = r
	case KindFile:
		var r FileResponse
		r.Length, err = c.ReadInt64()
		resp = r
	default:
		return nil, &UnknownKindError{Kind: raw, Response: true}
	}
	if err != nil {
		return nil, fmt.Errorf("read %s payload: %w", kind, err)
	}
	return resp, nil
}

// Expect returns resp unchanged when its kind is one of want.
func Expect(resp Response, want ...ResponseKind) (Response, error) {
	for _, k := range want {
		if resp.Kind() == k {
			return resp, nil
		}
	}
	return nil, &UnexpectedResponseError{Got: resp.Kind(), Want: want}
}
