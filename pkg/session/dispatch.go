package session

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/description"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/model"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/wire"
)

// Resources served by the session.
const (
	ResourceServices              = "/ci/services"
	ResourceInfo                  = "/iz/info"
	ResourceRegisteredDevices     = "/ci/registeredDevices"
	ResourcePairableDevices       = "/ci/pairableDevices"
	ResourceNetworkInfo           = "/ni/info"
	ResourceNetworkConfig         = "/ni/config"
	ResourceAllDescriptionChanges = "/ro/allDescriptionChanges"
	ResourceAllMandatoryValues    = "/ro/allMandatoryValues"
	ResourceInitialValues         = "/ei/initialValues"
	ResourceDeviceReady           = "/ei/deviceReady"
	ResourceActiveProgram         = "/ro/activeProgram"
	ResourceSelectedProgram       = "/ro/selectedProgram"
)

// getHandlers answer GET requests with a data list.
var getHandlers = map[string]func(s *Session) []map[string]any{
	ResourceServices: func(s *Session) []map[string]any {
		return s.appliance.Services()
	},
	ResourceInfo: func(s *Session) []map[string]any {
		return []map[string]any{s.appliance.Info()}
	},
	ResourceRegisteredDevices: func(s *Session) []map[string]any {
		return []map[string]any{s.AppInfo()}
	},
	ResourcePairableDevices: func(*Session) []map[string]any {
		return []map[string]any{{"deviceTypeList": []any{}}}
	},
	ResourceNetworkInfo: func(*Session) []map[string]any {
		return []map[string]any{description.NetworkInfo()}
	},
	ResourceNetworkConfig: func(*Session) []map[string]any {
		return []map[string]any{description.NetworkConfig()}
	},
	ResourceAllDescriptionChanges: func(s *Session) []map[string]any {
		return s.appliance.AllDescriptionChanges()
	},
	ResourceAllMandatoryValues: func(s *Session) []map[string]any {
		return s.appliance.AllValues()
	},
}

// dispatch handles one message. received is when the frame arrived.
func (s *Session) dispatch(ctx context.Context, msg *wire.Message, received time.Time) error {
	respond := func(resp *wire.Message) error {
		return s.send(ctx, resp, received)
	}
	notFound := func() error {
		return respond(msg.RespondCode(wire.CodeNotFound))
	}

	switch msg.Action {
	case wire.ActionGet:
		h, ok := getHandlers[msg.Resource]
		if !ok {
			return notFound()
		}
		return respond(msg.Respond(h(s)))

	case wire.ActionResponse:
		if msg.Resource != ResourceInitialValues {
			return notFound()
		}
		if len(msg.Data) == 0 {
			return fmt.Errorf("%w: %s response without data", ErrProtocol, msg.Resource)
		}
		s.mu.Lock()
		maps.Copy(s.appInfo, msg.Data[0])
		s.mu.Unlock()
		return nil

	case wire.ActionPost:
		switch msg.Resource {
		case model.ResourceValues:
			if err := s.appliance.UpdateEntities(ctx, msg.Data); err != nil {
				// A value the entity cannot hold is the peer's fault, but
				// does not end the session.
				s.logger.Warn("rejected value update", "error", err)
			}
			return respond(msg.Respond(nil))
		case ResourceActiveProgram, ResourceSelectedProgram:
			return respond(msg.Respond(nil))
		default:
			s.logger.Debug("dropping POST", "resource", msg.Resource)
			return nil
		}

	case wire.ActionNotify:
		if msg.Resource == ResourceDeviceReady {
			return nil
		}
		return notFound()
	}

	return notFound()
}
