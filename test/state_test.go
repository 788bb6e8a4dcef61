package test

import (
	"github.com/classbase/classbase/core/state"
)

type deploymentMarker struct {
	Version string `json:"version"`
}

func (s *IntegrationTestSuite) TestStateRoundTrip() {
	accessor := state.New(s.dbConn).Accessor("integration-test")

	s.Require().NoError(accessor.Write("marker", deploymentMarker{Version: "v1"}))

	var got deploymentMarker
	when, err := accessor.Read("marker", &got)
	s.Require().NoError(err)
	s.Require().False(when.IsZero())
	s.Require().Equal("v1", got.Version)

	// overwriting keeps one row per key and advances the timestamp
	s.Require().NoError(accessor.Write("marker", deploymentMarker{Version: "v2"}))
	later, err := accessor.Read("marker", &got)
	s.Require().NoError(err)
	s.Require().Equal("v2", got.Version)
	s.Require().False(later.Before(when))

	// the prefix keeps accessors apart
	var other deploymentMarker
	when, err = state.New(s.dbConn).Accessor("other").Read("marker", &other)
	s.Require().NoError(err)
	s.Require().True(when.IsZero())

	s.Require().NoError(accessor.Delete("marker"))
	when, err = accessor.Read("marker", &got)
	s.Require().NoError(err)
	s.Require().True(when.IsZero())
}
