package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/childhealth/handbookscan/internal/models"
	"github.com/childhealth/handbookscan/internal/poller"
	"github.com/childhealth/handbookscan/internal/review"
	"github.com/childhealth/handbookscan/internal/session"
)

const helpText = `指令：
  card <檔案>              上傳健保卡並等待辨識
  lookup <身分證或姓名>    查詢病患
  id <身分證字號> [姓名]   確認病患身分
  upload <檔案>...         上傳手冊頁面
  wait                     等待下一頁辨識完成
  queue                    列出頁面
  pick <頁面編號>          審核指定頁面
  show                     顯示目前審核頁面
  set <題號> 是|否|-       修改家長紀錄勾選
  note <文字>|-            修改家長備註
  done <題號>              切換家長評估「已做到」
  check <段>.<項>          切換醫師指導項目
  hospital <文字>          修改醫療院所
  doctor <文字>            修改醫師姓名
  confirm                  確認目前頁面
  reject                   退回目前頁面重拍
  finish                   完成掃描
  help                     顯示說明`

// Shell is a line-oriented terminal front end for the session controller.
// It is also the controller's Listener.
type Shell struct {
	in  *bufio.Scanner
	out io.Writer

	ctrl        *session.Controller
	waitTimeout time.Duration

	mu       sync.Mutex
	view     *review.View
	progress poller.Progress
	notify   chan struct{}
}

func NewShell(in io.Reader, out io.Writer) *Shell {
	return &Shell{
		in:          bufio.NewScanner(in),
		out:         out,
		waitTimeout: 5 * time.Minute,
		notify:      make(chan struct{}, 1),
	}
}

// SetWaitTimeout bounds the wait command
func (s *Shell) SetWaitTimeout(d time.Duration) {
	if d > 0 {
		s.waitTimeout = d
	}
}

func (s *Shell) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

func (s *Shell) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Shell) StepChanged(step session.Step) {
	s.printf("== %s ==\n", step.Label())
}

func (s *Shell) ProgressChanged(p poller.Progress, _ []models.Page) {
	s.mu.Lock()
	changed := p != s.progress
	s.progress = p
	if changed && p.Total > 0 {
		fmt.Fprintln(s.out, ProgressText(p))
	}
	s.mu.Unlock()
	s.signal()
}

func (s *Shell) ReviewReady(v review.View) {
	s.mu.Lock()
	s.view = &v
	RenderView(s.out, v)
	s.mu.Unlock()
	s.signal()
}

// Run drives one scan session from staff login to finish
func (s *Shell) Run(ctx context.Context, ctrl *session.Controller) (*session.Summary, error) {
	s.ctrl = ctrl

	for {
		name, ok := s.prompt("員工姓名> ")
		if !ok {
			return nil, io.EOF
		}
		_, err := ctrl.StartSession(ctx, name)
		if err == nil {
			break
		}
		s.report(err)
	}

	for {
		line, ok := s.prompt("> ")
		if !ok {
			return nil, io.EOF
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		summary, err := s.execute(ctx, line)
		if err != nil {
			s.report(err)
			continue
		}
		if summary != nil {
			s.printf("%s\n", summary.Message())
			return summary, nil
		}
	}
}

func (s *Shell) prompt(p string) (string, bool) {
	s.printf("%s", p)
	if !s.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(s.in.Text()), true
}

func (s *Shell) report(err error) {
	var ve *session.ValidationError
	switch {
	case errors.As(err, &ve):
		s.printf("%s\n", ve.Message)
	case errors.Is(err, poller.ErrOCRTimedOut):
		s.printf("OCR 處理逾時，請重試\n")
	case errors.Is(err, session.ErrNoActiveReview):
		s.printf("目前沒有待審核的頁面\n")
	default:
		s.printf("錯誤：%v\n", err)
	}
}

func (s *Shell) execute(ctx context.Context, line string) (*session.Summary, error) {
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "":
		return nil, nil
	case "help":
		s.printf("%s\n", helpText)
	case "card":
		return nil, s.card(ctx, rest)
	case "lookup":
		outcome := s.ctrl.LookupPatient(ctx, rest)
		s.printf("%s\n", outcome.Message())
	case "id":
		id, name, _ := strings.Cut(rest, " ")
		return nil, s.ctrl.ConfirmIdentity(ctx, id, strings.TrimSpace(name))
	case "upload":
		return nil, s.upload(ctx, strings.Fields(rest))
	case "wait":
		s.wait(ctx)
	case "queue":
		st := s.ctrl.State()
		s.printf("%s\n", ProgressText(st.Progress))
		s.mu.Lock()
		RenderQueue(s.out, st.Queue, st.CurrentPageID)
		s.mu.Unlock()
	case "pick":
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return nil, &session.ValidationError{Field: "page_id", Message: "請輸入頁面編號"}
		}
		_, err = s.ctrl.ReviewPage(id)
		return nil, err
	case "show":
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.view == nil {
			return nil, session.ErrNoActiveReview
		}
		RenderView(s.out, *s.view)
	case "set", "note", "done", "check", "hospital", "doctor":
		return nil, s.edit(cmd, rest)
	case "confirm":
		return nil, s.resolve(ctx, true)
	case "reject":
		return nil, s.resolve(ctx, false)
	case "finish":
		return s.ctrl.FinishSession(ctx)
	default:
		s.printf("未知指令 %q，輸入 help 查看說明\n", cmd)
	}
	return nil, nil
}

func readUpload(path string) (models.Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Upload{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return models.Upload{Filename: filepath.Base(path), Data: data}, nil
}

func (s *Shell) card(ctx context.Context, path string) error {
	if path == "" {
		return &session.ValidationError{Field: "file", Message: "請選擇健保卡照片"}
	}
	file, err := readUpload(path)
	if err != nil {
		return err
	}
	s.printf("辨識中...\n")
	card, err := s.ctrl.UploadIdentityCard(ctx, file)
	if err != nil {
		return err
	}
	s.printf("姓名：%s  身分證字號：%s  生日：%s\n", card.Info.Name, card.Info.IDNumber, card.Info.BirthDate)
	if card.Lookup != nil {
		s.printf("%s\n", card.Lookup.Message())
	}
	return nil
}

func (s *Shell) upload(ctx context.Context, paths []string) error {
	files := make([]models.Upload, 0, len(paths))
	for _, p := range paths {
		f, err := readUpload(p)
		if err != nil {
			return err
		}
		files = append(files, f)
	}
	ids, err := s.ctrl.UploadPages(ctx, files...)
	if err != nil {
		return err
	}
	s.printf("已上傳 %d 頁\n", len(ids))
	return nil
}

// wait blocks until a page is under review, every page is processed, or
// the wait times out.
func (s *Shell) wait(ctx context.Context) {
	timer := time.NewTimer(s.waitTimeout)
	defer timer.Stop()
	for {
		s.mu.Lock()
		ready := s.view != nil
		done := s.progress.Done()
		s.mu.Unlock()
		if ready {
			return
		}
		if done {
			// a page taken for review is announced right after the progress
			st := s.ctrl.State()
			if st.CurrentPageID == 0 {
				s.printf("%s\n", ProgressText(st.Progress))
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.printf("OCR 處理逾時，請重試\n")
			return
		case <-s.notify:
		}
	}
}

func (s *Shell) edit(cmd, arg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view == nil {
		return session.ErrNoActiveReview
	}
	v := s.view

	invalid := &session.ValidationError{Field: cmd, Message: "無法修改此欄位"}
	switch {
	case v.ParentRecord != nil:
		pr := v.ParentRecord
		switch cmd {
		case "set":
			num, answer, _ := strings.Cut(arg, " ")
			i, err := strconv.Atoi(num)
			if err != nil || !pr.Select(i-1, models.Answer(strings.TrimSpace(answer))) {
				return invalid
			}
		case "note":
			if arg == "-" || arg == "" {
				pr.Notes = nil
			} else {
				note := arg
				pr.Notes = &note
			}
		default:
			return invalid
		}
	case v.HealthEducation != nil:
		he := v.HealthEducation
		switch cmd {
		case "done":
			i, err := strconv.Atoi(arg)
			if err != nil || i < 1 || i > len(he.Assessments) {
				return invalid
			}
			he.Assessments[i-1].Done = !he.Assessments[i-1].Done
		case "check":
			sec, item, _ := strings.Cut(arg, ".")
			i, err1 := strconv.Atoi(sec)
			j, err2 := strconv.Atoi(item)
			if err1 != nil || err2 != nil || i < 1 || i > len(he.Guidance) || j < 1 || j > len(he.Guidance[i-1].Items) {
				return invalid
			}
			row := &he.Guidance[i-1].Items[j-1]
			row.Checked = !row.Checked
		case "hospital":
			he.HospitalCode = arg
		case "doctor":
			he.DoctorName = arg
		default:
			return invalid
		}
	default:
		return invalid
	}
	RenderView(s.out, *v)
	return nil
}

func (s *Shell) resolve(ctx context.Context, confirm bool) error {
	s.mu.Lock()
	v := s.view
	s.mu.Unlock()
	if v == nil {
		return session.ErrNoActiveReview
	}

	// clear before the call so a ReviewReady fired by the refresh is kept
	s.mu.Lock()
	s.view = nil
	s.mu.Unlock()

	var err error
	if confirm {
		err = s.ctrl.ConfirmReview(ctx, *v)
	} else {
		err = s.ctrl.RejectCurrentReview(ctx)
	}
	if err != nil {
		s.mu.Lock()
		if s.view == nil {
			s.view = v
		}
		s.mu.Unlock()
		return err
	}
	if confirm {
		s.printf("已確認頁面 #%d\n", v.PageID)
	} else {
		s.printf("已退回頁面 #%d，請重新拍攝\n", v.PageID)
	}
	return nil
}
