/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
脚本执行、校验、输出流、HTTP 与数据库五大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标。每个 Collector
持有独立的 Registry，按 namespace 隔离，支持多维度 label 分组，
便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，按业务域分组管理。

# 主要能力

  - 执行指标：执行总数与耗时，按 script/status 分组；
    正在运行的执行数 Gauge。
  - 校验指标：被拒绝的执行请求计数，按 kind（script/parameter）分组。
  - 输出流指标：发布的输出事件计数，按事件类型分组。
  - HTTP 指标：请求总数与耗时，按 method/path/status 分组，
    状态码归类为 2xx/3xx/4xx/5xx。
  - 数据库指标：活跃/空闲连接数 Gauge，按 database 分组。
*/
package metrics
