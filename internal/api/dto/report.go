package dto

type AllocationResponse struct {
	Total    int `json:"total_minutes"`
	Normal   int `json:"normal_minutes"`
	Overtime int `json:"overtime_minutes"`
}

type ReportRowResponse struct {
	UserID          string             `json:"user_id"`
	Date            string             `json:"date"`
	Travel          AllocationResponse `json:"travel"`
	Work            AllocationResponse `json:"work"`
	Combined        AllocationResponse `json:"combined"`
	CompletedVisits int                `json:"completed_visits"`
}

type UserTotalResponse struct {
	UserID          string             `json:"user_id"`
	Total           AllocationResponse `json:"total"`
	CompletedVisits int                `json:"completed_visits"`
}

type ReportResponse struct {
	From  string              `json:"from"`
	To    string              `json:"to"`
	Users []UserTotalResponse `json:"users"`
	Rows  []ReportRowResponse `json:"rows"`
}
