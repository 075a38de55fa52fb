package cleanup

import (
	"github.com/clothesfashion/backend-checkout/internal/common"
)

func isNotFound(err error) bool {
	appErr, ok := common.AsAppError(err)
	return ok && appErr.Code == common.CodeNotFound
}
