package test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/classbase/classbase/core/client"
)

func TestIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test needs docker")
	}
	suite.Run(t, new(IntegrationTestSuite))
}

func (s *IntegrationTestSuite) TestRecordLifecycleEmitsEvents() {
	todos := s.client.Class("todo")

	var created map[string]interface{}
	status, err := todos.Create(map[string]interface{}{"title": "write tests", "done": false}, &created)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusCreated, status)
	id, err := uuid.Parse(created["id"].(string))
	s.Require().NoError(err)

	var read map[string]interface{}
	_, err = todos.Item(id).Read(&read)
	s.Require().NoError(err)
	s.Equal("write tests", read["title"])

	_, err = todos.Item(id).Update(map[string]interface{}{"done": true}, nil)
	s.Require().NoError(err)

	var list struct {
		Results []map[string]interface{} `json:"results"`
	}
	_, err = todos.WithWhere(map[string]interface{}{
		"done": map[string]interface{}{"eq": true},
	}).List(&list)
	s.Require().NoError(err)
	s.Require().Len(list.Results, 1)
	s.Equal(id.String(), list.Results[0]["id"])

	_, err = todos.Item(id).Delete()
	s.Require().NoError(err)

	// the create and delete events must arrive on the topic
	reader := s.eventReader()
	defer reader.Close()
	keys := map[string]bool{}
	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		message, err := reader.ReadMessage(ctx)
		cancel()
		s.Require().NoError(err)
		keys[string(message.Key)] = true
	}
	s.True(keys["todo/create"])
	s.True(keys["todo/delete"])
}

func (s *IntegrationTestSuite) TestSessionRoundTrip() {
	anonymous := client.NewWithRouter(s.router)

	var signedUp map[string]interface{}
	status, err := anonymous.Class("user").Create(map[string]interface{}{
		"username": "ada",
		"email":    "ada@example.com",
		"password": "very secret",
	}, &signedUp)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusCreated, status)
	s.NotContains(signedUp, "password")

	var loggedIn map[string]interface{}
	status, err = anonymous.Login("ada", "very secret", &loggedIn)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusOK, status)
	token, ok := loggedIn["session_token"].(string)
	s.Require().True(ok)
	s.NotEmpty(token)

	authenticated := anonymous.WithToken(token)
	var me map[string]interface{}
	_, err = authenticated.Me(&me)
	s.Require().NoError(err)
	s.Equal(signedUp["id"], me["id"])

	_, err = authenticated.Logout()
	s.Require().NoError(err)

	status, _ = authenticated.Me(&me)
	s.Equal(http.StatusUnauthorized, status)
}
