package port

import "github.com/AnthonyPark465/flight-analysis-refined/internal/domain/entity"

type PlotRenderer interface {
	Render(points []entity.TrajectoryPoint) (*entity.PlotDocument, error)
}
