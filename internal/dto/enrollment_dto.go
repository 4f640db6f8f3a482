package dto

// BulkEnrollRequest enrolls or unenrolls a batch of learners in a course.
type BulkEnrollRequest struct {
	UserIDs []uint `json:"user_ids" validate:"required,min=1,dive,gt=0"`
}

// EnrollmentResult reports the outcome for one learner in a bulk operation.
// Individual failures never abort the batch; they are returned inspectable.
type EnrollmentResult struct {
	UserID uint   `json:"user_id"`
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// BulkEnrollResponse carries per-learner outcomes plus a summary count.
type BulkEnrollResponse struct {
	CourseID  uint               `json:"course_id"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Results   []EnrollmentResult `json:"results"`
}
