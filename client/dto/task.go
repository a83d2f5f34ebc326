package dto

import "idPhoto/client/models"

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	Error       string `json:"error,omitempty"`
}

type SubmitResponse struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message,omitempty"`
}

type StatusResponse struct {
	TaskID     string  `json:"task_id"`
	Status     string  `json:"status"`
	ResultPath *string `json:"result_path,omitempty"`
	Error      *string `json:"error,omitempty"`
}

func (r *StatusResponse) ToTask() *models.Task {
	task := &models.Task{
		ID:     r.TaskID,
		Status: models.TaskStatus(r.Status),
	}
	if r.Error != nil {
		task.Error = *r.Error
	}
	return task
}

type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Text returns the first non-empty message field.
func (r *ErrorResponse) Text() string {
	switch {
	case r.Message != "":
		return r.Message
	case r.Error != "":
		return r.Error
	default:
		return r.Detail
	}
}

type PresetResponse struct {
	ID              int     `json:"id"`
	Name            string  `json:"name"`
	Model           string  `json:"model"`
	MaxSize         int     `json:"max_size"`
	UseAlphaMatting bool    `json:"use_alpha_matting"`
	AlphaForeground int     `json:"alpha_foreground"`
	AlphaBackground int     `json:"alpha_background"`
	AlphaErode      int     `json:"alpha_erode"`
	IsDefault       bool    `json:"is_default"`
	Description     *string `json:"description,omitempty"`
}

func (p *PresetResponse) ToModel() models.RemovalPreset {
	preset := models.RemovalPreset{
		ID:              p.ID,
		Name:            p.Name,
		Model:           p.Model,
		MaxSize:         p.MaxSize,
		UseAlphaMatting: p.UseAlphaMatting,
		AlphaForeground: p.AlphaForeground,
		AlphaBackground: p.AlphaBackground,
		AlphaErode:      p.AlphaErode,
		IsDefault:       p.IsDefault,
	}
	if p.Description != nil {
		preset.Description = *p.Description
	}
	return preset
}
