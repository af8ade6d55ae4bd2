package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Clark-Hu/business-ratings/internal/domain"
	"github.com/Clark-Hu/business-ratings/internal/repository"
)

const notFoundMessage = "Rating not found"

type ratingWriteRequest struct {
	BusinessID *int64  `json:"business_id"`
	CustomerID *int64  `json:"customer_id"`
	Rating     *int    `json:"rating"`
	Review     *string `json:"review"`
}

type ratingResponse struct {
	ID         int64     `json:"id"`
	BusinessID int64     `json:"business_id"`
	CustomerID int64     `json:"customer_id"`
	Rating     int       `json:"rating"`
	Review     *string   `json:"review"`
	CreatedAt  time.Time `json:"created_at"`
}

type averageResponse struct {
	BusinessID    int64   `json:"business_id"`
	AverageRating float64 `json:"average_rating"`
	TotalRatings  int64   `json:"total_ratings"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// toParams checks required fields and the score range.
func (req ratingWriteRequest) toParams() (repository.RatingWriteParams, error) {
	switch {
	case req.BusinessID == nil:
		return repository.RatingWriteParams{}, errors.New("business_id is required")
	case req.CustomerID == nil:
		return repository.RatingWriteParams{}, errors.New("customer_id is required")
	case req.Rating == nil:
		return repository.RatingWriteParams{}, errors.New("rating is required")
	case !domain.ValidScore(*req.Rating):
		return repository.RatingWriteParams{}, fmt.Errorf("rating must be between %d and %d", domain.MinScore, domain.MaxScore)
	}
	return repository.RatingWriteParams{
		BusinessID: *req.BusinessID,
		CustomerID: *req.CustomerID,
		Score:      *req.Rating,
		Review:     req.Review,
	}, nil
}

func (s *Server) handleListBusinessRatings(w http.ResponseWriter, r *http.Request) {
	filters, err := buildRatingFilters(r.URL.Query(), s.listLimits())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	s.listRatings(w, r, filters)
}

func (s *Server) handleListCustomerRatings(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query(), s.listLimits())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	s.listRatings(w, r, repository.RatingListFilters{Limit: limit})
}

func (s *Server) listRatings(w http.ResponseWriter, r *http.Request, filters repository.RatingListFilters) {
	items, err := s.repo.Ratings.List(r.Context(), filters)
	if err != nil {
		s.logger.Printf("list ratings error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list ratings")
		return
	}

	resp := make([]ratingResponse, 0, len(items))
	for _, rating := range items {
		resp = append(resp, toRatingResponse(rating))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBusinessAverage(w http.ResponseWriter, r *http.Request) {
	businessID, err := parseBusinessID(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	agg, err := s.averages.Get(r.Context(), businessID, s.repo.Ratings.Aggregate)
	if err != nil {
		s.logger.Printf("aggregate ratings error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to compute average rating")
		return
	}

	resp := averageResponse{BusinessID: businessID}
	if agg.Count > 0 {
		resp.AverageRating = agg.Average
		resp.TotalRatings = agg.Count
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateRating(w http.ResponseWriter, r *http.Request) {
	var req ratingWriteRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	params, err := req.toParams()
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
		return
	}

	rating, err := s.repo.Ratings.Create(r.Context(), params)
	if err != nil {
		s.logger.Printf("create rating error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create rating")
		return
	}
	s.averages.Invalidate(rating.BusinessID)

	w.Header().Set("Location", fmt.Sprintf("/cx/ratings/%d/", rating.ID))
	s.respondJSON(w, http.StatusCreated, toRatingResponse(rating))
}

func (s *Server) handleGetRating(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	rating, err := s.repo.Ratings.Get(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, "get rating", err)
		return
	}
	s.respondJSON(w, http.StatusOK, toRatingResponse(rating))
}

func (s *Server) handleUpdateRating(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	var req ratingWriteRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	params, err := req.toParams()
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
		return
	}

	rating, prevBusinessID, err := s.repo.Ratings.Update(r.Context(), id, params)
	if err != nil {
		s.respondStoreError(w, "update rating", err)
		return
	}
	s.averages.Invalidate(prevBusinessID, rating.BusinessID)

	s.respondJSON(w, http.StatusOK, toRatingResponse(rating))
}

func (s *Server) handleDeleteRating(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	businessID, err := s.repo.Ratings.Delete(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, "delete rating", err)
		return
	}
	s.averages.Invalidate(businessID)

	s.respondJSON(w, http.StatusOK, messageResponse{Message: "Rating deleted successfully"})
}

// respondStoreError maps repository.ErrNotFound to 404 and anything else to 500.
func (s *Server) respondStoreError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "NOT_FOUND", notFoundMessage)
		return
	}
	s.logger.Printf("%s error: %v", op, err)
	s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process rating")
}

func toRatingResponse(rating domain.Rating) ratingResponse {
	return ratingResponse{
		ID:         rating.ID,
		BusinessID: rating.BusinessID,
		CustomerID: rating.CustomerID,
		Rating:     rating.Score,
		Review:     rating.Review,
		CreatedAt:  rating.CreatedAt,
	}
}

