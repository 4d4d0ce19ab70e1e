package fakepm

import "net/http/httptest"

// Stack is a running pair of fake backends on loopback ports
type Stack struct {
	*Server
	PM       *httptest.Server
	Registry *httptest.Server
}

// Start serves a new fake with the given lag on two httptest listeners
func Start(lag int) *Stack {
	s := New(lag)
	return &Stack{
		Server:   s,
		PM:       httptest.NewServer(s.PMHandler()),
		Registry: httptest.NewServer(s.RegistryHandler()),
	}
}

// Close shuts both listeners down
func (st *Stack) Close() {
	st.PM.Close()
	st.Registry.Close()
}
