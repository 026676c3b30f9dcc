package lwm2m

import (
	"errors"

	"github.com/backkem/lwm2m/pkg/coap"
	"github.com/backkem/lwm2m/pkg/objects"
	"github.com/backkem/lwm2m/pkg/registry"
	"github.com/backkem/lwm2m/pkg/tlv"
)

// CodeForError maps an operation error to the CoAP response code sent to
// the server.
func CodeForError(err error) coap.Code {
	switch {
	case err == nil:
		return coap.Changed
	case errors.Is(err, errSecurityObject):
		return coap.Unauthorized
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, registry.ErrObjectNotDefined):
		return coap.NotFound
	case errors.Is(err, registry.ErrMethodNotAllowed), errors.Is(err, registry.ErrNoHandler),
		errors.Is(err, objects.ErrNotSupported):
		return coap.MethodNotAllowed
	case errors.Is(err, registry.ErrBadRequest), errors.Is(err, registry.ErrInvalidPath),
		isTLVError(err):
		return coap.BadRequest
	default:
		return coap.InternalServerError
	}
}

func isTLVError(err error) bool {
	for _, target := range []error{
		tlv.ErrTruncated, tlv.ErrValueTooLarge, tlv.ErrInvalidLength, tlv.ErrInvalidKind,
		tlv.ErrInvalidType, tlv.ErrInvalidBoolean, tlv.ErrNotContainer,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// response is the outcome of one device management request.
type response struct {
	code    coap.Code
	format  coap.ContentFormat
	payload []byte
}

func failure(err error) response {
	return response{code: CodeForError(err)}
}

// handleRequest serves one device management request from the
// registration server and sends the response.
//
// Reference: OMA-TS-LightweightM2M-V1_0, Section 5.4
func (c *Client) handleRequest(m *coap.Message) error {
	resp := c.dispatch(m)
	var opts *coap.Options
	if resp.payload != nil {
		opts = coap.NewOptions()
		opts.SetContentFormat(resp.format)
	}
	if c.log != nil {
		c.log.Debugf("%s %s -> %s", m.Code, m.Options.Path(), resp.code)
	}
	return c.ep.respond(m, resp.code, opts, resp.payload)
}

func (c *Client) dispatch(m *coap.Message) response {
	path, err := registry.ParsePath(m.Options.Paths)
	if err != nil {
		return failure(err)
	}
	if path.IsRoot() {
		return response{code: coap.MethodNotAllowed}
	}
	if path.ObjectID == objects.SecurityID {
		return failure(errSecurityObject)
	}

	switch m.Code {
	case coap.GET:
		return c.handleGet(m, path)
	case coap.PUT:
		return c.handlePut(m, path)
	case coap.POST:
		return c.handlePost(m, path)
	default:
		return response{code: coap.MethodNotAllowed}
	}
}

// handleGet serves Read, and Discover when link format is requested.
// Observe is not supported; an Observe option is ignored and the request
// is answered as a plain Read.
func (c *Client) handleGet(m *coap.Message, path registry.Path) response {
	if m.Options.HasAccept {
		switch m.Options.Accept {
		case coap.FormatLinkFormat:
			links, err := c.registry.Discover(path)
			if err != nil {
				return failure(err)
			}
			return response{code: coap.Content, format: coap.FormatLinkFormat, payload: links}
		case coap.FormatLWM2MTLV:
		default:
			return response{code: coap.NotAcceptable}
		}
	}

	recs, err := c.registry.Read(path)
	if err != nil {
		return failure(err)
	}
	payload, err := tlv.EncodeAll(recs)
	if err != nil {
		return failure(err)
	}
	if payload == nil {
		payload = []byte{}
	}
	return response{code: coap.Content, format: coap.FormatLWM2MTLV, payload: payload}
}

// handlePut serves Write. Write-Attributes, a PUT without payload, is not
// implemented.
func (c *Client) handlePut(m *coap.Message, path registry.Path) response {
	if len(m.Payload) == 0 && !m.Options.HasContentFormat {
		return response{code: coap.NotImplemented}
	}
	if !isTLV(m) {
		return response{code: coap.UnsupportedMediaType}
	}
	var err error
	switch path.Depth {
	case 3:
		err = c.registry.WriteResource(path.ObjectID, path.InstanceID, path.ResourceID, m.Payload)
	case 2:
		err = c.registry.WriteInstance(path.ObjectID, path.InstanceID, m.Payload)
	default:
		return response{code: coap.MethodNotAllowed}
	}
	if err != nil {
		return failure(err)
	}
	return response{code: coap.Changed}
}

// handlePost serves Execute on a resource and a partial Write on an
// instance. Create is not supported.
func (c *Client) handlePost(m *coap.Message, path registry.Path) response {
	var err error
	switch path.Depth {
	case 3:
		err = c.registry.ExecuteResource(path.ObjectID, path.InstanceID, path.ResourceID, m.Payload)
	case 2:
		if !isTLV(m) {
			return response{code: coap.UnsupportedMediaType}
		}
		err = c.registry.WriteInstance(path.ObjectID, path.InstanceID, m.Payload)
	default:
		return response{code: coap.MethodNotAllowed}
	}
	if err != nil {
		return failure(err)
	}
	return response{code: coap.Changed}
}
