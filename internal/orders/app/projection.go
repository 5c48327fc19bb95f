package app

import (
	"encoding/json"
	"time"

	"github.com/dejobratic/laborders/internal/orders/domain"
)

// OrderResponse is the external shape of an order. The version counter stays internal.
type OrderResponse struct {
	ID        string                `json:"id"`
	Lab       string                `json:"lab"`
	Patient   string                `json:"patient"`
	Customer  string                `json:"customer"`
	State     string                `json:"state"`
	Status    string                `json:"status"`
	Services  []ServiceItemResponse `json:"services"`
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

// ServiceItemResponse renders Value as a bare JSON number.
type ServiceItemResponse struct {
	Name   string      `json:"name"`
	Value  json.Number `json:"value"`
	Status string      `json:"status"`
}

func NewOrderResponse(order domain.Order) OrderResponse {
	services := make([]ServiceItemResponse, len(order.Services))
	for i, s := range order.Services {
		services[i] = ServiceItemResponse{
			Name:   s.Name,
			Value:  json.Number(s.Value.String()),
			Status: string(s.Status),
		}
	}

	return OrderResponse{
		ID:        order.ID,
		Lab:       order.Lab,
		Patient:   order.Patient,
		Customer:  order.Customer,
		State:     string(order.State),
		Status:    string(order.Status),
		Services:  services,
		CreatedAt: order.CreatedAt,
		UpdatedAt: order.UpdatedAt,
	}
}

// OrderList is one page of projected orders.
type OrderList struct {
	Data []OrderResponse `json:"data"`
	Meta ListMeta        `json:"meta"`
}

type ListMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}
