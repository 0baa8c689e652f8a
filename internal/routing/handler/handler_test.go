package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	lettermodels "courier/internal/letter/models"
	letterstore "courier/internal/letter/store/letter"
	routingservice "courier/internal/routing/service"
	deliverystore "courier/internal/routing/store/delivery"
	rulestore "courier/internal/routing/store/rule"
	"courier/pkg/domain"
	auditmemory "courier/pkg/platform/audit/store/memory"
	"courier/pkg/platform/keylock"
	"courier/pkg/testutil"
)

// staticValidator accepts any bearer token as the configured actor.
type staticValidator struct {
	actor domain.Actor
}

func (v staticValidator) ValidateToken(string) (domain.Actor, error) {
	return v.actor, nil
}

type RoutingHandlerSuite struct {
	suite.Suite
	router  chi.Router
	letters *letterstore.InMemory
	actor   domain.Actor
}

func TestRoutingHandlerSuite(t *testing.T) {
	suite.Run(t, new(RoutingHandlerSuite))
}

func (s *RoutingHandlerSuite) SetupTest() {
	s.letters = letterstore.NewInMemory()
	s.actor = testutil.NewActor("records", domain.RoleDispatcher, domain.RoleRuleAdmin)

	svc, err := routingservice.New(s.letters, rulestore.NewInMemory(), deliverystore.NewInMemory(),
		auditmemory.NewInMemoryLedger(), keylock.New())
	s.Require().NoError(err)

	h := New(svc, slog.Default(), staticValidator{actor: s.actor})
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *RoutingHandlerSuite) do(req *http.Request) *httptest.ResponseRecorder {
	req.Header.Set("Authorization", "Bearer test-token")
	return testutil.DoRequest(s.router, req)
}

func (s *RoutingHandlerSuite) verifiedLetter() *lettermodels.Letter {
	letter := &lettermodels.Letter{
		ID:         domain.NewLetterID(),
		Reference:  "REF-" + domain.NewLetterID().String(),
		Title:      "Annual Budget Report",
		Department: "records",
		Status:     lettermodels.StatusVerified,
	}
	s.Require().NoError(s.letters.Create(context.Background(), letter))
	return letter
}

func (s *RoutingHandlerSuite) routeManually(letterID domain.LetterID) routingResponse {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/letters/"+letterID.String()+"/route",
		manualRouteRequest{TargetDepartment: "archive"})
	rr := s.do(req)
	s.Require().Equal(http.StatusCreated, rr.Code)
	return *testutil.UnmarshalResponse[routingResponse](s.T(), rr)
}

func (s *RoutingHandlerSuite) TestRules() {
	s.Run("create rule", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/rules", ruleRequest{
			Name:             "budget",
			SourceDepartment: "records",
			TargetDepartment: "archive",
			Conditions:       ruleConditions{TitleContains: "budget"},
			Priority:         5,
		})
		rr := s.do(req)
		s.Require().Equal(http.StatusCreated, rr.Code)

		resp := testutil.UnmarshalResponse[ruleResponse](s.T(), rr)
		s.True(resp.Active)
		s.Equal(5, resp.Priority)
	})

	s.Run("priority out of range is a 400", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/rules", ruleRequest{
			Name:             "bad",
			SourceDepartment: "records",
			TargetDepartment: "archive",
			Priority:         99,
		})
		rr := s.do(req)
		s.Equal(http.StatusBadRequest, rr.Code)
	})

	s.Run("list requires a department", func() {
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/rules"))
		s.Equal(http.StatusBadRequest, rr.Code)
	})

	s.Run("disable then list shows the inactive rule", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/rules", ruleRequest{
			Name:             "short-lived",
			SourceDepartment: "records",
			TargetDepartment: "archive",
			Priority:         1,
		})
		created := testutil.UnmarshalResponse[ruleResponse](s.T(), s.do(req))

		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/rules/"+created.ID+"/disable", nil))
		s.Require().Equal(http.StatusOK, rr.Code)
		s.False(testutil.UnmarshalResponse[ruleResponse](s.T(), rr).Active)
	})
}

func (s *RoutingHandlerSuite) TestManualRoute() {
	s.Run("routes a verified letter", func() {
		letter := s.verifiedLetter()
		resp := s.routeManually(letter.ID)
		s.Equal("pending", resp.Status)
		s.Equal("archive", resp.ToDepartment)
		s.Empty(resp.RuleID)
	})

	s.Run("second route is a 409", func() {
		letter := s.verifiedLetter()
		s.routeManually(letter.ID)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/letters/"+letter.ID.String()+"/route",
			manualRouteRequest{TargetDepartment: "legal"})
		s.Equal(http.StatusConflict, s.do(req).Code)
	})

	s.Run("missing target is a 400", func() {
		letter := s.verifiedLetter()
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/letters/"+letter.ID.String()+"/route",
			manualRouteRequest{})
		s.Equal(http.StatusBadRequest, s.do(req).Code)
	})
}

func (s *RoutingHandlerSuite) TestDeliveryLifecycle() {
	letter := s.verifiedLetter()
	rec := s.routeManually(letter.ID)

	s.Run("advance to in_transit", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/routings/"+rec.ID+"/advance", notesRequest{Notes: "picked up"})
		rr := s.do(req)
		s.Require().Equal(http.StatusOK, rr.Code)
		s.Equal("in_transit", testutil.UnmarshalResponse[routingResponse](s.T(), rr).Status)
	})

	s.Run("advance to delivered stamps the timestamp", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/routings/"+rec.ID+"/advance", notesRequest{})
		rr := s.do(req)
		s.Require().Equal(http.StatusOK, rr.Code)

		resp := testutil.UnmarshalResponse[routingResponse](s.T(), rr)
		s.Equal("delivered", resp.Status)
		s.NotNil(resp.DeliveredAt)
	})

	s.Run("advance past delivered is a 409", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/routings/"+rec.ID+"/advance", notesRequest{})
		s.Equal(http.StatusConflict, s.do(req).Code)
	})

	s.Run("history lists the record", func() {
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/letters/"+letter.ID.String()+"/routings"))
		s.Require().Equal(http.StatusOK, rr.Code)
		records := testutil.UnmarshalResponse[[]routingResponse](s.T(), rr)
		s.Require().Len(*records, 1)
		s.Equal("delivered", (*records)[0].Status)
	})

	s.Run("audit trail covers creation and both advances", func() {
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/routings/"+rec.ID+"/audit"))
		s.Require().Equal(http.StatusOK, rr.Code)
		entries := testutil.UnmarshalResponse[[]map[string]any](s.T(), rr)
		s.Len(*entries, 3)
	})
}

func (s *RoutingHandlerSuite) TestRejectDelivery() {
	letter := s.verifiedLetter()
	rec := s.routeManually(letter.ID)

	s.Run("notes are mandatory", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/routings/"+rec.ID+"/reject", notesRequest{})
		s.Equal(http.StatusBadRequest, s.do(req).Code)
	})

	s.Run("rejects with notes", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/routings/"+rec.ID+"/reject", notesRequest{Notes: "misrouted"})
		rr := s.do(req)
		s.Require().Equal(http.StatusOK, rr.Code)
		s.Equal("rejected", testutil.UnmarshalResponse[routingResponse](s.T(), rr).Status)
	})
}
