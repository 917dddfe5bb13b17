package payments

import "fmt"

// Manager holds the two registered gateways. Taking both in the constructor
// keeps registration exhaustive; there is no way to wire up a partial set.
type Manager struct {
	gateways map[Kind]Gateway
}

func NewManager(razorpay, paypal Gateway) *Manager {
	return &Manager{gateways: map[Kind]Gateway{
		KindRazorpay: razorpay,
		KindPayPal:   paypal,
	}}
}

func (m *Manager) Gateway(kind Kind) (Gateway, error) {
	gateway, ok := m.gateways[kind]
	if !ok {
		return nil, fmt.Errorf("gateway not registered: %s", kind)
	}
	return gateway, nil
}
