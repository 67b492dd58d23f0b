// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package vnet builds the two-sided virtual network the end-to-end
// tests run over: two NATed LANs behind a WAN router, with a token
// bucket filter bounding each direction's capacity.
package vnet

import (
	"errors"
	"strings"

	"github.com/pion/logging"
	"github.com/pion/transport/v3/vnet"
)

// Initial link settings.
const (
	initCapacity = 1 * vnet.MBit
	initMaxBurst = 80 * vnet.KBit
)

// ErrNoIPAvailable is returned when a side's static IP pool is used up.
var ErrNoIPAvailable = errors.New("no IP available")

type routerWithConfig struct {
	*vnet.RouterConfig
	*vnet.Router
	usedIPs map[string]struct{}
}

// getIPMapping hands out the next unused public/private pair from the
// router's static IPs.
func (r *routerWithConfig) getIPMapping() (private, public string, err error) {
	for _, ip := range r.StaticIPs {
		if _, used := r.usedIPs[ip]; used {
			continue
		}
		r.usedIPs[ip] = struct{}{}
		mapping := strings.Split(ip, "/")
		public = mapping[0]
		private = mapping[1]

		return private, public, nil
	}

	return "", "", ErrNoIPAvailable
}

// NetworkManager owns the WAN and the two leaf networks.
type NetworkManager struct {
	leftRouter  *routerWithConfig
	leftTBF     *vnet.TokenBucketFilter
	rightRouter *routerWithConfig
	rightTBF    *vnet.TokenBucketFilter

	loggerFactory logging.LoggerFactory
}

// ManagerOption configures a NetworkManager.
type ManagerOption func(*NetworkManager)

// WithLoggerFactory sets the logger factory used by the routers.
func WithLoggerFactory(factory logging.LoggerFactory) ManagerOption {
	return func(m *NetworkManager) {
		m.loggerFactory = factory
	}
}

// NewManager builds and starts the network: a 0.0.0.0/0 WAN with two
// 1:1 NATed /24 child routers, each throttled by a token bucket filter
// at the initial capacity.
func NewManager(opts ...ManagerOption) (*NetworkManager, error) {
	manager := &NetworkManager{
		loggerFactory: logging.NewDefaultLoggerFactory(),
	}
	for _, opt := range opts {
		opt(manager)
	}

	wan, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "0.0.0.0/0",
		LoggerFactory: manager.loggerFactory,
	})
	if err != nil {
		return nil, err
	}

	manager.leftRouter, manager.leftTBF, err = manager.addLeafNetwork(wan, "10.0.1.0/24", "10.0.1.1/10.0.1.101")
	if err != nil {
		return nil, err
	}
	manager.rightRouter, manager.rightTBF, err = manager.addLeafNetwork(wan, "10.0.2.0/24", "10.0.2.1/10.0.2.101")
	if err != nil {
		return nil, err
	}

	if err := wan.Start(); err != nil {
		return nil, err
	}

	return manager, nil
}

func (m *NetworkManager) addLeafNetwork(
	wan *vnet.Router, cidr string, staticIPs ...string,
) (*routerWithConfig, *vnet.TokenBucketFilter, error) {
	config := &vnet.RouterConfig{
		CIDR:          cidr,
		StaticIPs:     staticIPs,
		LoggerFactory: m.loggerFactory,
		NATType: &vnet.NATType{
			Mode: vnet.NATModeNAT1To1,
		},
	}
	router, err := vnet.NewRouter(config)
	if err != nil {
		return nil, nil, err
	}

	tbf, err := vnet.NewTokenBucketFilter(
		router,
		vnet.TBFRate(initCapacity),
		vnet.TBFMaxBurst(initMaxBurst),
	)
	if err != nil {
		return nil, nil, err
	}
	if err = wan.AddNet(tbf); err != nil {
		return nil, nil, err
	}
	if err = wan.AddChildRouter(router); err != nil {
		return nil, nil, err
	}

	return &routerWithConfig{
		RouterConfig: config,
		Router:       router,
		usedIPs:      make(map[string]struct{}),
	}, tbf, nil
}

// GetLeftNet attaches a new host to the left LAN and returns its net
// together with its public 1:1 NAT address.
func (m *NetworkManager) GetLeftNet() (*vnet.Net, string, error) {
	return attachHost(m.leftRouter)
}

// GetRightNet attaches a new host to the right LAN and returns its net
// together with its public 1:1 NAT address.
func (m *NetworkManager) GetRightNet() (*vnet.Net, string, error) {
	return attachHost(m.rightRouter)
}

func attachHost(router *routerWithConfig) (*vnet.Net, string, error) {
	privateIP, publicIP, err := router.getIPMapping()
	if err != nil {
		return nil, "", err
	}
	net, err := vnet.NewNet(&vnet.NetConfig{
		StaticIPs: []string{privateIP},
	})
	if err != nil {
		return nil, "", err
	}
	if err = router.AddNet(net); err != nil {
		return nil, "", err
	}

	return net, publicIP, nil
}

// SetCapacity reconfigures both directions' token bucket filters. Takes
// effect on packets already in flight.
func (m *NetworkManager) SetCapacity(capacity, maxBurst int) {
	m.leftTBF.Set(vnet.TBFRate(capacity), vnet.TBFMaxBurst(maxBurst))
	m.rightTBF.Set(vnet.TBFRate(capacity), vnet.TBFMaxBurst(maxBurst))
}
