package market

import "time"

// nowFn 便于测试替换时钟。
var nowFn = time.Now
