package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrProfileAccessOnly ErrCode = "PROFILE_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrUnknownAction  ErrCode = "UNKNOWN_ACTION"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Test session ──────────────────────────────────────────────────
	ErrTestNotFound      ErrCode = "TEST_NOT_FOUND"
	ErrNoQuestions       ErrCode = "NO_QUESTIONS"
	ErrNoActiveAttempt   ErrCode = "NO_ACTIVE_ATTEMPT"
	ErrAttemptClosed     ErrCode = "ATTEMPT_CLOSED"
	ErrUnknownQuestion   ErrCode = "UNKNOWN_QUESTION"
	ErrUnknownAnswer     ErrCode = "UNKNOWN_ANSWER"
	ErrNoRecovery        ErrCode = "NO_RECOVERY"
	ErrSubmissionPending ErrCode = "SUBMISSION_PENDING"
	ErrSubmissionFailed  ErrCode = "SUBMISSION_FAILED"
	ErrProgressNotFound  ErrCode = "PROGRESS_NOT_FOUND"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal           ErrCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrCode = "SERVICE_UNAVAILABLE"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrTokenExpired:
		return "Token autentikasi telah kedaluwarsa."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrProfileAccessOnly:
		return "Sumber daya ini terbatas untuk profil peserta."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."
	case ErrUnknownAction:
		return "Aksi tidak dikenal."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."
	case ErrConflict:
		return "Sumber daya sudah ada."

	// ─── Test session ──────────────────────────────────────────────────
	case ErrTestNotFound:
		return "Tes tidak ditemukan."
	case ErrNoQuestions:
		return "Tes ini tidak memiliki pertanyaan."
	case ErrNoActiveAttempt:
		return "Tidak ada percobaan tes yang sedang berjalan."
	case ErrAttemptClosed:
		return "Percobaan tes ini sudah selesai atau dibatalkan."
	case ErrUnknownQuestion:
		return "Pertanyaan tidak termasuk dalam tes ini."
	case ErrUnknownAnswer:
		return "Jawaban tidak termasuk dalam pertanyaan ini."
	case ErrNoRecovery:
		return "Tidak ada progres tersimpan untuk dipulihkan."
	case ErrSubmissionPending:
		return "Jawaban sedang dikirim. Silakan tunggu."
	case ErrSubmissionFailed:
		return "Gagal mengirim jawaban. Progres Anda tetap tersimpan, silakan coba lagi."
	case ErrProgressNotFound:
		return "Progres tersimpan tidak ditemukan atau sudah kedaluwarsa."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	case ErrServiceUnavailable:
		return "Layanan sedang tidak tersedia. Silakan coba lagi nanti."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
