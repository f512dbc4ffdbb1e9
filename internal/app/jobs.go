package app

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
	"github.com/shirou/gopsutil/process"
	"github.com/talkincode/packflow/internal/domain"
	"github.com/talkincode/packflow/pkg/metrics"
	"go.uber.org/zap"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ErrUnknownJob is returned when triggering a job that is not registered
var ErrUnknownJob = errors.New("unknown job")

type job struct {
	name string
	spec string
	fn   func()
	id   cron.EntryID
}

// JobInfo describes a registered background job
type JobInfo struct {
	Name string     `json:"name"`
	Spec string     `json:"spec"`
	Next *time.Time `json:"next,omitempty"`
	Prev *time.Time `json:"prev,omitempty"`
}

func (a *Application) jobTable() []job {
	return []job{
		{name: "monitor", spec: "@every 30s", fn: func() {
			go a.SchedSystemMonitorTask()
			go a.SchedProcessMonitorTask()
		}},
		{name: "clear-expire-data", spec: "@daily", fn: a.SchedClearExpireData},
		{name: "reconcile-stock", spec: "@hourly", fn: a.SchedReconcileStock},
	}
}

func (a *Application) initJob() {
	loc, _ := time.LoadLocation(a.appConfig.System.Location)
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	a.jobs = a.jobTable()
	for i := range a.jobs {
		id, err := a.sched.AddFunc(a.jobs[i].spec, a.jobs[i].fn)
		if err != nil {
			zap.S().Errorf("init job %s error %s", a.jobs[i].name, err.Error())
			continue
		}
		a.jobs[i].id = id
	}

	a.sched.Start()
}

// Jobs lists the background jobs with their next and previous run times
func (a *Application) Jobs() []JobInfo {
	jobs := a.jobs
	if jobs == nil {
		jobs = a.jobTable()
	}
	out := make([]JobInfo, 0, len(jobs))
	for _, j := range jobs {
		info := JobInfo{Name: j.name, Spec: j.spec}
		if a.sched != nil && j.id != 0 {
			e := a.sched.Entry(j.id)
			if !e.Next.IsZero() {
				next := e.Next
				info.Next = &next
			}
			if !e.Prev.IsZero() {
				prev := e.Prev
				info.Prev = &prev
			}
		}
		out = append(out, info)
	}
	return out
}

// RunJobNow runs a registered job synchronously
func (a *Application) RunJobNow(name string) error {
	jobs := a.jobs
	if jobs == nil {
		jobs = a.jobTable()
	}
	for _, j := range jobs {
		if j.name == name {
			zap.L().Info("job triggered", zap.String("namespace", "jobs"), zap.String("job", name))
			j.fn()
			return nil
		}
	}
	return errors.Wrapf(ErrUnknownJob, "job %q", name)
}

// SchedSystemMonitorTask system monitor
func (a *Application) SchedSystemMonitorTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	_cpuuse, err := cpu.Percent(0, false)
	if err == nil && len(_cpuuse) > 0 {
		metrics.SetGauge("system_cpuuse", int64(_cpuuse[0]*100)) // percentage * 100
	}

	_meminfo, err := mem.VirtualMemory()
	if err == nil {
		metrics.SetGauge("system_memuse", int64(_meminfo.Used/1024/1024)) //nolint:gosec // G115: memory MB value fits in int64
	}
}

// SchedProcessMonitorTask app process monitor
func (a *Application) SchedProcessMonitorTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	p, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // G115: PID is always within int32 range
	if err != nil {
		return
	}

	cpuuse, err := p.CPUPercent()
	if err == nil {
		metrics.SetGauge("packflow_cpuuse", int64(cpuuse*100))
	}

	meminfo, err := p.MemoryInfo()
	if err == nil {
		metrics.SetGauge("packflow_memuse", int64(meminfo.RSS/1024/1024)) //nolint:gosec // G115: memory MB value fits in int64
	}
}

// SchedClearExpireData drops old operator logs and expired idempotency records
func (a *Application) SchedClearExpireData() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	days := a.appConfig.Workflow.OprLogDays
	if days <= 0 {
		days = 365
	}
	a.gormDB.
		Where("opt_time < ? ", time.Now().
			Add(-time.Hour*24*time.Duration(days))).Delete(&domain.SysOprLog{})

	ttl := a.appConfig.Workflow.IdempotencyTTLDays
	if ttl <= 0 {
		ttl = 30
	}
	n, err := a.fulfillment.PurgeRuns(context.Background(), time.Hour*24*time.Duration(ttl))
	if err != nil {
		zap.L().Error("purge workflow runs error", zap.Error(err))
		return
	}
	if n > 0 {
		zap.L().Info("purged workflow runs", zap.String("namespace", "jobs"), zap.Int64("count", n))
	}
}

// SchedReconcileStock recomputes net stock where the stored value drifted
// from quantity + packed - dispatched.
func (a *Application) SchedReconcileStock() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	var drifted []domain.Product
	err := a.gormDB.
		Where("net_stock <> quantity + material_packed - material_dispatch").
		Find(&drifted).Error
	if err != nil {
		zap.L().Error("reconcile stock query error", zap.Error(err))
		return
	}
	for i := range drifted {
		p := &drifted[i]
		old := p.NetStock
		p.RecomputeNetStock()
		if err := a.gormDB.Model(p).Update("net_stock", p.NetStock).Error; err != nil {
			zap.L().Error("reconcile stock update error", zap.Int64("product_id", p.ID), zap.Error(err))
			continue
		}
		zap.L().Warn("net stock reconciled",
			zap.String("namespace", "jobs"),
			zap.Int64("product_id", p.ID),
			zap.Int("from", old),
			zap.Int("to", p.NetStock))
	}
	metrics.SetGauge("packflow_stock_reconciled", int64(len(drifted)))
}
