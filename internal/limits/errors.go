package limits

import "errors"

// ErrInvalidConfig - ошибка конфигурации. Отказ по лимиту ошибкой не является.
var ErrInvalidConfig = errors.New("limits: invalid config")
