package ocr

import "github.com/childhealth/handbookscan/internal/models"

const ageStageTable = `年齡階段與次數對照：
- 第1次：出生至二個月
- 第2次：二至四個月
- 第3次：四至十個月
- 第4次：十個月至一歲半
- 第5次：一歲半至二歲
- 第6次：二至三歲
- 第7次：三至未滿七歲`

const classifyPrompt = `你是一位專業的 OCR 辨識系統。請判斷這張圖片是以下哪一種類型：

1. "basic_info" - 健保卡（有姓名、身分證字號）
2. "parent_record" - 兒童健康手冊的「家長紀錄事項」頁面（粉紅色底，有發展里程碑勾選題目）
3. "health_education" - 兒童健康手冊的「衛教指導紀錄」頁面（白色底，有家長評估和醫師指導重點的勾選）
4. "unknown" - 無法辨識的類型

請只回傳 JSON 格式：
{"page_type": "類型", "confidence": 0.0-1.0, "reason": "判斷原因"}

只回傳 JSON，不要其他文字。`

const basicInfoPrompt = `你是一位專業的 OCR 辨識系統。這是一張健保卡的照片。
請提取以下資訊，回傳 JSON 格式：

{
  "name": "姓名",
  "id_number": "身分證字號",
  "birth_date": "出生日期（西元年 YYYY-MM-DD）"
}

注意：
- 民國年轉西元年：民國年 + 1911 = 西元年
- 身分證字號格式為一個英文字母加九位數字
- 只回傳 JSON，不要其他文字。`

const parentRecordPrompt = `你是一位專業的 OCR 辨識系統。這是兒童健康手冊的「家長紀錄事項」頁面（粉紅色頁面）。
頁面上有多個發展里程碑的勾選題目，每題旁邊有「是/否」的勾選。

請仔細辨識並提取所有內容，回傳 JSON 格式：

{
  "age_stage": "年齡階段標題（如「二至三歲」）",
  "visit_number": 對應第幾次健檢(1-7的數字),
  "record_date": "填寫日期（西元年 YYYY-MM-DD）或 null",
  "checklist_items": [
    {
      "題目": "題目內容（完整抄錄）",
      "類別": "粗動作/細動作/語言認知/社會性/其他",
      "結果": "是/否/未勾選",
      "是警訊": true/false（題目前面有※符號的為 true）
    }
  ],
  "parent_notes": "家長備註內容或 null"
}

` + ageStageTable + `

注意：
- 題目前有※符號的是警訊項目，「是警訊」要設為 true
- 民國年轉西元年：民國年 + 1911 = 西元年
- 請仔細辨識勾選的是「是」還是「否」
- 只回傳 JSON，不要其他文字。`

const healthEducationPrompt = `你是一位專業的 OCR 辨識系統。這是兒童健康手冊的「衛教指導紀錄」頁面（白色頁面）。
頁面分為「家長評估」和「醫師指導重點」兩大區塊。

請仔細辨識並提取所有內容，回傳 JSON 格式：

{
  "age_stage": "年齡階段（如「二至三歲」）",
  "visit_number": 對應第幾次衛教(1-7的數字),
  "guidance_date": "指導日期（西元年 YYYY-MM-DD）或 null",
  "parent_assessment": [
    {"主題": "衛教主題名稱", "未做到": true/false, "已做到": true/false}
  ],
  "doctor_guidance": [
    {
      "主題": "大分類主題",
      "重點": "重點分類",
      "項目": [{"內容": "具體衛教項目內容", "已勾": true/false}]
    }
  ],
  "hospital_code": "醫療院所名稱及代碼或 null",
  "doctor_name": "醫師簽章名稱或 null",
  "relationship": "衛教醫師與寶寶關係或 null"
}

` + ageStageTable + `

注意：
- 民國年轉西元年：民國年 + 1911 = 西元年
- 仔細辨識勾選狀態
- 只回傳 JSON，不要其他文字。`

func extractPrompt(t models.PageType) (string, bool) {
	switch t {
	case models.PageTypeBasicInfo:
		return basicInfoPrompt, true
	case models.PageTypeParentRecord:
		return parentRecordPrompt, true
	case models.PageTypeHealthEducation:
		return healthEducationPrompt, true
	default:
		return "", false
	}
}
