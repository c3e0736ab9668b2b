package camera

import (
	"go.uber.org/zap"

	"camera-core/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger().Named("camera")
}
