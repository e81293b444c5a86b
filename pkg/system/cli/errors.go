package cli

import "fmt"

// SpawnError is returned when a program could not be started at all
type SpawnError struct {
	Program string
	Err     error
}

func (s *SpawnError) Error() string {
	return fmt.Sprintf("could not start %s: %v", s.Program, s.Err)
}

func (s *SpawnError) Unwrap() error {
	return s.Err
}

func (s *SpawnError) Is(e error) bool {
	_, ok := e.(*SpawnError)
	return ok
}
