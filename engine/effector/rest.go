package effector

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/relayforge/relayforge/engine/exectx"
	"github.com/relayforge/relayforge/engine/node"
	"github.com/relayforge/relayforge/engine/nodemeta"
	"github.com/relayforge/relayforge/engine/port"
)

// REST dispatches TOOL{REST} nodes: assembles a request from input ports
// by role (path/query/header/body), performs it, and maps the response
// back onto declared output ports.
type REST struct {
	Client HTTPDoer
}

func (e *REST) Invoke(ctx context.Context, ectx *exectx.Context, nodeID string, meta *nodemeta.Metamodel) error {
	variant, ok := meta.Variant.(nodemeta.RESTVariant)
	if !ok {
		return fmt.Errorf("effector: node %s is not a REST node", nodeID)
	}
	uri := variant.ServiceURI
	query := url.Values{}
	headers := make(map[string]string, len(variant.Headers))
	for k, v := range variant.Headers {
		headers[k] = v
	}
	bodyCtx := exectx.New()

	for _, p := range meta.InputPorts {
		v := ectx.Get(node.InputPath(nodeID, p.Key))
		if v == nil && p.HasDefault {
			v = p.DefaultValue
		}
		switch role := p.Role.(type) {
		case port.RESTRole:
			switch role {
			case port.RESTRoleRequestPathVariable:
				uri = strings.ReplaceAll(uri, "{"+p.Key+"}", fmt.Sprint(v))
			case port.RESTRoleRequestQueryVariable:
				if v != nil {
					query.Set(p.Key, fmt.Sprint(v))
				}
			case port.RESTRoleRequestHeader:
				if v != nil {
					headers[p.Key] = fmt.Sprint(v)
				}
			case port.RESTRoleRequestBodyField:
				if err := bodyCtx.Put(p.Key, v); err != nil {
					return fmt.Errorf("effector: rest node %s: body field %q: %w", nodeID, p.Key, err)
				}
			}
		}
	}
	if encoded := query.Encode(); encoded != "" {
		if strings.Contains(uri, "?") {
			uri += "&" + encoded
		} else {
			uri += "?" + encoded
		}
	}

	resp, err := e.Client.Do(ctx, HTTPRequest{
		Method:  variant.Method,
		URL:     uri,
		Headers: headers,
		Body:    bodyCtx.AsMap(),
	})
	if err != nil {
		return classifyProviderError(err, map[string]any{"node": nodeID})
	}

	if statusPort := findByRole(meta.OutputPorts, port.RESTRoleResponseStatus); statusPort != nil {
		if err := ectx.Put(node.OutputPath(nodeID, statusPort.Key), resp.StatusCode); err != nil {
			return err
		}
	}
	respCtx, err := exectx.NewFromMap(resp.Body)
	if err != nil {
		return fmt.Errorf("effector: rest node %s: failed to read response body: %w", nodeID, err)
	}
	for _, p := range meta.OutputPorts {
		role, ok := p.Role.(port.RESTRole)
		if !ok || role != port.RESTRoleResponseBodyField {
			continue
		}
		if err := ectx.Put(node.OutputPath(nodeID, p.Key), respCtx.Get(p.Key)); err != nil {
			return err
		}
	}
	return nil
}
