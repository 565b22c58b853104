package api

import (
	"net/http"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/entity"
	"github.com/gin-gonic/gin"
)

func registerHistory(g gin.IRouter, uc *Usecase) {
	g.GET("/history", uc.listHistory)
}

type listHistoryOutput struct {
	Items []entity.HistoryRecord `json:"items"`
	Total int                    `json:"total"`
}

func (uc *Usecase) listHistory(c *gin.Context) {
	records, err := uc.Catalog.List(c.Request.Context(), c.Query("q"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if records == nil {
		records = []entity.HistoryRecord{}
	}
	c.JSON(http.StatusOK, listHistoryOutput{Items: records, Total: len(records)})
}
