package server

type Option func(s *Server)

// WithPort sets the port the server listens on.
func WithPort(port string) Option {
	return func(s *Server) {
		if port != "" {
			s.port = port
		}
	}
}

// WithStreamBuffer sets how many events a stream may fall behind before it is dropped.
func WithStreamBuffer(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.streamBuffer = n
		}
	}
}

// WithCORSOrigins restricts cross origin requests to the given comma separated origins.
func WithCORSOrigins(origins string) Option {
	return func(s *Server) {
		if origins != "" {
			s.corsOrigins = origins
		}
	}
}
